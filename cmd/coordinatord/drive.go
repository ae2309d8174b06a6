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

package main

import (
	"context"

	"github.com/arangodb/aqlengine/block"
	"github.com/arangodb/aqlengine/engine"
)

// drive runs top's pull protocol to completion (spec.md §4.2: Initialize,
// InitializeCursor, repeated GetSome until exhausted, Shutdown), handing
// every output row to emit. It is the thin driver a coordinator needs once
// a plan's tree has already been built -- compiling the plan itself is out
// of scope (spec.md §1).
func drive(ctx context.Context, top block.Operator, batchSize int, emit func(map[string]any) error) error {
	if err := top.Initialize(ctx); err != nil {
		return err
	}
	if err := top.InitializeCursor(ctx, nil, 0); err != nil {
		top.Shutdown(engine.Internal)
		return err
	}

	for {
		blk, err := top.GetSome(ctx, 1, batchSize)
		if err != nil {
			top.Shutdown(engine.CodeOf(err))
			return err
		}
		if blk == nil {
			break
		}
		rows, err := blk.ToJSONRows(nil)
		blk.Destroy()
		if err != nil {
			top.Shutdown(engine.Internal)
			return err
		}
		for _, r := range rows {
			row, _ := r.(map[string]any)
			if err := emit(row); err != nil {
				top.Shutdown(engine.Internal)
				return err
			}
		}
	}
	return top.Shutdown(engine.NoError)
}
