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

// Singleton yields exactly one row, stashed from the query's input binding
// at InitializeCursor time (spec.md §4.3).
type Singleton struct {
	Base

	row  *value.Block
	sent bool
}

// NewSingleton constructs a Singleton source.
func NewSingleton(eng *engine.Engine) *Singleton {
	return &Singleton{Base: Base{Eng: eng}}
}

func (s *Singleton) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := s.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	s.sent = false
	if input != nil {
		s.row = input.SliceIndices([]int{pos})
	} else {
		s.row = value.NewBlock(1, 0)
	}
	return nil
}

func (s *Singleton) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	if s.sent || atMost <= 0 {
		return nil, nil
	}
	s.sent = true
	return s.row.Clone(), nil
}

func (s *Singleton) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	if s.sent || atMost <= 0 {
		return 0, nil
	}
	s.sent = true
	return 1, nil
}

func (s *Singleton) Skip(ctx context.Context, n int) (bool, error) { return s.Base.Skip(ctx, s, n) }

func (s *Singleton) HasMore(ctx context.Context) (bool, error) { return !s.sent, nil }

func (s *Singleton) Remaining(ctx context.Context) (int64, error) {
	if s.sent {
		return 0, nil
	}
	return 1, nil
}

func (s *Singleton) Count(ctx context.Context) (int64, error) { return 1, nil }
