// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import "testing"

func TestStripePartitionsWithoutOverlap(tst *testing.T) {
	ctx0 := Context{Rank: 0, Size: 2}
	ctx1 := Context{Rank: 1, Size: 2}
	a := ctx0.Stripe(7)
	b := ctx1.Stripe(7)
	if len(a)+len(b) != 7 {
		tst.Fatalf("stripe sizes %d+%d != 7", len(a), len(b))
	}
	seen := make(map[int]bool)
	for _, i := range append(a, b...) {
		if seen[i] {
			tst.Fatalf("index %d assigned to both ranks", i)
		}
		seen[i] = true
	}
}

func TestSingleProcessStripeIsIdentity(tst *testing.T) {
	ctx := Context{Rank: 0, Size: 1}
	idxs := ctx.Stripe(5)
	if len(idxs) != 5 {
		tst.Fatalf("expected 5 indices, got %d", len(idxs))
	}
	for i, v := range idxs {
		if v != i {
			tst.Fatalf("idxs[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestIsRoot(tst *testing.T) {
	if !(Context{Rank: 0, Size: 3}).IsRoot() {
		tst.Fatalf("rank 0 should be root")
	}
	if (Context{Rank: 1, Size: 3}).IsRoot() {
		tst.Fatalf("rank 1 should not be root")
	}
}
