// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package toc

import (
	"fmt"

	"github.com/bpowers/docpack/internal/bitset"
)

// MaxDepth bounds how deeply pages may nest.
const MaxDepth = 32

// Node is one page in the table-of-contents tree.  Section holds the
// 1-based position of the page at each level, parents first, so the
// second child of the first top-level page is [1 2].
type Node struct {
	ID       uint64
	Section  []int
	Children []*Node
}

// buildTree links entries to their parents.  Entries must be sorted by
// id and every non-zero parent must name an entry; children are
// ordered by id.  Every entry has to be reachable from
// a top-level entry (parent 0) in at most MaxDepth steps.
func buildTree(entries []Entry) ([]*Node, error) {
	children := make(map[uint64][]int)
	for i, e := range entries {
		children[e.Parent] = append(children[e.Parent], i)
	}

	placed := bitset.New(len(entries))

	var walk func(i int, section []int) (*Node, error)
	walk = func(i int, section []int) (*Node, error) {
		e := entries[i]
		if len(section) > MaxDepth {
			return nil, idErr(StageTree, -1, e.ID, fmt.Errorf("depth %d: %w", len(section), ErrTOCTooDeep))
		}
		placed.Set(i)
		n := &Node{ID: e.ID, Section: section}
		if e.ID == 0 {
			// v1 allows id 0, which can't be anyone's parent
			return n, nil
		}
		for k, ci := range children[e.ID] {
			sub := make([]int, len(section)+1)
			copy(sub, section)
			sub[len(section)] = k + 1
			child, err := walk(ci, sub)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
		return n, nil
	}

	var roots []*Node
	for k, i := range children[0] {
		n, err := walk(i, []int{k + 1})
		if err != nil {
			return nil, err
		}
		roots = append(roots, n)
	}

	// whatever we didn't reach hangs off a loop of parent links
	if placed.Count() != len(entries) {
		i := placed.FirstClear()
		return nil, idErr(StageTree, -1, entries[i].ID, ErrTOCCycle)
	}

	return roots, nil
}

// Walk calls fn for every node in depth-first order, parents before
// children, stopping at the first error.
func Walk(nodes []*Node, fn func(*Node) error) error {
	for _, n := range nodes {
		if err := fn(n); err != nil {
			return err
		}
		if err := Walk(n.Children, fn); err != nil {
			return err
		}
	}
	return nil
}
