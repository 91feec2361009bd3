// File: jobs/base_job.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package jobs

// BaseJob is a node in the job hierarchy. The parent link is non-owning:
// a parent must outlive the wait on its children.
type BaseJob struct {
	parent *BaseJob
	depth  int
	tag    string
}

// JobOption configures a job at construction.
type JobOption func(*BaseJob)

// WithParent links the job under parent.
func WithParent(parent *BaseJob) JobOption {
	return func(b *BaseJob) {
		b.parent = parent
		if parent != nil {
			b.depth = parent.depth + 1
		}
	}
}

// WithTag attaches a tracking tag, reported in logs and debug probes.
func WithTag(tag string) JobOption {
	return func(b *BaseJob) { b.tag = tag }
}

func (b *BaseJob) init(opts []JobOption) {
	for _, opt := range opts {
		opt(b)
	}
}

// Parent returns the parent job or nil.
func (b *BaseJob) Parent() *BaseJob { return b.parent }

// Depth returns the distance to the root job.
func (b *BaseJob) Depth() int { return b.depth }

// Tag returns the tracking tag.
func (b *BaseJob) Tag() string { return b.tag }

// Root walks parent links up to the first job without a parent.
func (b *BaseJob) Root() *BaseJob {
	r := b
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// IsMyJob reports whether candidate is b itself or one of its ancestors.
func (b *BaseJob) IsMyJob(candidate *BaseJob) bool {
	if candidate == nil {
		return false
	}
	for j := b; j != nil; j = j.parent {
		if j == candidate {
			return true
		}
	}
	return false
}
