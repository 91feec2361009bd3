// File: cmd/hioload-jobs/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-jobs command entry point.

package main

import "github.com/momentics/hioload-jobs/internal/cli"

func main() {
	cli.Execute()
}
