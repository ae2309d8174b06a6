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

package block

import (
	"context"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// Scatter broadcasts every upstream row to every one of NumClients
// destinations (spec.md §4.7) — unlike Distribute, there is no
// partitioning: each client independently consumes its own copy of the
// full stream at its own pace, tracked as a (buffered-block-index,
// position) cursor into a shared, append-only log of upstream blocks.
type Scatter struct {
	Base

	NumClients int

	log          []*value.Block
	cursors      []int // per-client index into log
	positions    []int // per-client row offset within log[cursors[i]]
	upstreamDone bool
	shutdownDone bool
}

// NewScatter constructs a Scatter broadcasting dep to numClients destinations.
func NewScatter(eng *engine.Engine, dep Operator, numClients int) *Scatter {
	return &Scatter{
		Base:       Base{Eng: eng, Dependencies: []Operator{dep}},
		NumClients: numClients,
		cursors:    make([]int, numClients),
		positions:  make([]int, numClients),
	}
}

func (s *Scatter) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := s.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	s.log = nil
	s.cursors = make([]int, s.NumClients)
	s.positions = make([]int, s.NumClients)
	s.upstreamDone = false
	return nil
}

func (s *Scatter) Shutdown(code engine.Code) error {
	if s.shutdownDone {
		return nil
	}
	s.shutdownDone = true
	for _, b := range s.log {
		b.Destroy()
	}
	s.log = nil
	return s.Base.Shutdown(code)
}

// gc drops log entries every client has already fully consumed, bounding
// memory to the slowest client's lag rather than the whole query's output.
func (s *Scatter) gc() {
	minCursor := -1
	for _, c := range s.cursors {
		if minCursor < 0 || c < minCursor {
			minCursor = c
		}
	}
	if minCursor <= 0 {
		return
	}
	for i := 0; i < minCursor; i++ {
		s.log[i].Destroy()
	}
	s.log = s.log[minCursor:]
	for i := range s.cursors {
		s.cursors[i] -= minCursor
	}
}

func (s *Scatter) pullFor(ctx context.Context, clientID, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	for s.cursors[clientID] >= len(s.log) {
		if err := s.Eng.CheckKilled(); err != nil {
			return nil, 0, err
		}
		if s.upstreamDone {
			return nil, 0, nil
		}
		blk, err := s.Dependency().GetSome(ctx, 1, s.Eng.Config.DefaultBatchSize)
		if err != nil {
			return nil, 0, err
		}
		if blk == nil {
			s.upstreamDone = true
			return nil, 0, nil
		}
		s.log = append(s.log, blk)
	}
	front := s.log[s.cursors[clientID]]
	start := s.positions[clientID]
	take := front.NumRows() - start
	if take > atMost {
		take = atMost
	}
	idx := make([]int, take)
	for i := range idx {
		idx[i] = start + i
	}
	s.positions[clientID] += take
	if s.positions[clientID] >= front.NumRows() {
		s.cursors[clientID]++
		s.positions[clientID] = 0
		s.gc()
	}
	if skipping {
		return nil, take, nil
	}
	return front.SliceIndices(idx), take, nil
}

// Client returns the Operator the destination identified by id should pull
// through.
func (s *Scatter) Client(id int) Operator { return &scatterClient{s: s, id: id} }

type scatterClient struct {
	Base
	s  *Scatter
	id int
}

func (c *scatterClient) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := c.s.pullFor(ctx, c.id, atLeast, atMost, false)
	return blk, err
}

func (c *scatterClient) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := c.s.pullFor(ctx, c.id, atLeast, atMost, true)
	return n, err
}

func (c *scatterClient) Skip(ctx context.Context, n int) (bool, error) { return c.Base.Skip(ctx, c, n) }

func (c *scatterClient) HasMore(ctx context.Context) (bool, error) {
	if c.s.cursors[c.id] < len(c.s.log) {
		return true, nil
	}
	return !c.s.upstreamDone, nil
}
