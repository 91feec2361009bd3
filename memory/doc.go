// Package memory
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Layered memory resources for the job runtime. A resource hands out raw
// byte blocks (api.Resource) and resources stack on each other:
//
//	VirtualResource (mmap / VirtualAlloc, heap fallback)
//	  -> TLSFResource (two-level segregated fit over page-rounded pools)
//	    -> TSSmallMultiPool (size-class free-list cache)
//	      -> CoreAllocator[T] (typed element slices)
//
// Blocks are plain []byte views whose capacity is clipped to the requested
// size; every resource finds the owning structure from the block address.
// Arena memory is not scanned by the garbage collector, so only pointer-free
// data may live in it. CoreAllocator enforces this for element types.
package memory
