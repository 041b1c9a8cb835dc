// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package runtime replaces the original engine's global MPI communicator
// with an explicit, passed-by-value runtime context record (§5, §9 "global
// mutable state ... becomes an explicitly passed runtime context record").
package runtime

import "github.com/cpmech/gosl/mpi"

// Context carries this process's rank/size within the initial-condition
// communicator, derived the same way FEM.NewFEM derives o.Proc/o.Nproc from
// mpi.Rank()/mpi.Size() gated on mpi.IsOn().
type Context struct {
	Rank int
	Size int
}

// New builds the runtime context for the current process. Single-process
// runs (mpi.IsOn() false, or never started) get Rank=0, Size=1.
func New() Context {
	if mpi.IsOn() {
		return Context{Rank: mpi.Rank(), Size: mpi.Size()}
	}
	return Context{Rank: 0, Size: 1}
}

// IsRoot reports whether this process is responsible for theta-only
// (initial-condition-independent) contributions such as the regulariser,
// mirroring the mpi.Rank() == 0 gating in gofem/main.go.
func (c Context) IsRoot() bool { return c.Rank == 0 }

// Stripe partitions [0,n) round-robin across the communicator, returning
// the initial-condition indices owned by this rank.
func (c Context) Stripe(n int) []int {
	var out []int
	for i := 0; i < n; i++ {
		if i%c.Size == c.Rank {
			out = append(out, i)
		}
	}
	return out
}
