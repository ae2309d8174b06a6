// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package block implements the pull protocol (spec.md §4.2) and the
// operator family that realizes a planned query as a tree of Blocks
// (spec.md §4.3-§4.7).
package block

import (
	"context"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// Operator is the uniform pull interface every pipeline node implements
// (spec.md §4.2).
type Operator interface {
	// Initialize is one-shot, before any work; it must propagate to
	// dependencies.
	Initialize(ctx context.Context) error

	// InitializeCursor is re-entrant: it resets internal buffering state
	// and propagates to dependencies with the same arguments.
	InitializeCursor(ctx context.Context, input *value.Block, pos int) error

	// Shutdown runs exactly once per query; it releases buffered state
	// and propagates to dependencies, returning the first error a
	// dependency reported (errors are not ranked by severity).
	Shutdown(code engine.Code) error

	// GetSome returns a block of between 1 and atMost rows (trying for
	// at least atLeast), or nil iff the operator is exhausted.
	GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error)

	// SkipSome is get_some's discarding twin: it returns how many rows
	// were skipped, using the same framing guarantee.
	SkipSome(ctx context.Context, atLeast, atMost int) (int, error)

	// Skip loops over SkipSome until n rows have been discarded or the
	// operator is exhausted, and reports whether end-of-stream was hit.
	Skip(ctx context.Context, n int) (bool, error)

	// HasMore is a (possibly conservative) hint.
	HasMore(ctx context.Context) (bool, error)

	// Remaining estimates how many rows remain; -1 means unknown.
	Remaining(ctx context.Context) (int64, error)

	// Count estimates the total row count this operator will ever
	// produce; -1 means unknown.
	Count(ctx context.Context) (int64, error)
}

// Base implements the shared bookkeeping every concrete operator embeds:
// the dependency list, the per-operator buffer/pos/done triple, and the
// default Skip/HasMore/Remaining/Count/Shutdown/InitializeCursor bodies
// from spec.md §4.2. Operators that change row count or shape (Filter,
// Aggregate, Limit, the Modification family, Gather/Scatter/Distribute)
// override GetSome/SkipSome directly instead of calling PullRows.
type Base struct {
	Eng          *engine.Engine
	Dependencies []Operator
	ClearRegs    []int

	buffer []*value.Block
	pos    int
	done   bool
}

// Dependency returns the single upstream operator; valid for every
// operator except Subquery (two dependencies) and the cluster fan-in/out
// operators (many dependencies).
func (b *Base) Dependency() Operator {
	if len(b.Dependencies) == 0 {
		return nil
	}
	return b.Dependencies[0]
}

// Children returns every upstream operator, for callers (Describe) that
// need to walk the full tree rather than assume a single dependency.
func (b *Base) Children() []Operator {
	return b.Dependencies
}

// InitializeCursor resets buffering state and propagates to dependencies.
func (b *Base) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	b.buffer = nil
	b.pos = 0
	b.done = false
	for _, d := range b.Dependencies {
		if err := d.InitializeCursor(ctx, input, pos); err != nil {
			return err
		}
	}
	return nil
}

// Initialize propagates to dependencies; concrete operators that allocate
// per-query resources should call Base.Initialize first.
func (b *Base) Initialize(ctx context.Context) error {
	for _, d := range b.Dependencies {
		if err := d.Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown releases the buffer and propagates to every dependency,
// collecting but never throwing from their errors (spec.md §5, §7): it
// returns the first error encountered, having still called Shutdown on
// every dependency.
func (b *Base) Shutdown(code engine.Code) error {
	var first error
	for _, d := range b.Dependencies {
		if err := d.Shutdown(code); err != nil && first == nil {
			first = err
		}
	}
	for _, bl := range b.buffer {
		bl.Destroy()
	}
	b.buffer = nil
	return first
}

// Skip loops over SkipSome, as the self-describing default implementation
// from spec.md §4.2 ("skip(n) -> reached_end ... loops over skip_some").
// self is passed explicitly because Base cannot call back into the
// embedding operator's overridden SkipSome through Go embedding alone.
func (b *Base) Skip(ctx context.Context, self Operator, n int) (bool, error) {
	for n > 0 {
		skipped, err := self.SkipSome(ctx, 1, n)
		if err != nil {
			return false, err
		}
		if skipped == 0 {
			more, err := self.HasMore(ctx)
			if err != nil {
				return false, err
			}
			return !more, nil
		}
		n -= skipped
	}
	return false, nil
}

// HasMore is the generic hint: true until the buffer and upstream are both
// exhausted.
func (b *Base) HasMore(ctx context.Context) (bool, error) {
	if len(b.buffer) > 0 {
		return true, nil
	}
	if b.done {
		return false, nil
	}
	return true, nil
}

// Remaining is the generic "unknown" hint.
func (b *Base) Remaining(ctx context.Context) (int64, error) { return -1, nil }

// Count is the generic "unknown" hint.
func (b *Base) Count(ctx context.Context) (int64, error) { return -1, nil }

// RegsToClear returns the registers this node frees once a block has left
// it (spec.md §3).
func (b *Base) RegsToClear() []int { return b.ClearRegs }

// Done reports whether the upstream dependency has signalled end-of-stream
// (the buffer may still hold unconsumed rows).
func (b *Base) Done() bool { return b.done }
