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
	"fmt"
	"io"
	"strings"
)

// parent walks to children; every operator embedding Base implements it
// via Base.Children, and an operator without it (Remote) is printed as a
// leaf.
type parent interface {
	Children() []Operator
}

// Describe writes an indented, human-readable dump of the operator tree
// rooted at op to dst: one line per node, with each node's notable fields,
// indented by depth. There is no query planner in this repo to produce an
// EXPLAIN plan from AQL text, but a tree already built by a caller (tests,
// a debug endpoint) is worth being able to print, the way plan.Graphviz
// dumps a planned Tree's Op chain and Children -- this is that dump's
// text-only, non-dot cousin.
func Describe(op Operator, dst io.Writer) error {
	return describe(op, dst, 0)
}

func describe(op Operator, dst io.Writer, depth int) error {
	if op == nil {
		return nil
	}
	_, err := fmt.Fprintf(dst, "%s%s\n", strings.Repeat("  ", depth), label(op))
	if err != nil {
		return err
	}
	if p, ok := op.(parent); ok {
		for _, c := range p.Children() {
			if err := describe(c, dst, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// label formats a node's type name plus whichever fields best identify
// what it does, mirroring the per-op String() labels plan.Graphviz prints
// for each Op in a Tree's chain.
func label(op Operator) string {
	switch o := op.(type) {
	case *Singleton:
		return "Singleton"
	case *EnumerateCollection:
		return fmt.Sprintf("EnumerateCollection(%s -> r%d, random=%v)", o.Collection, o.OutReg, o.Random)
	case *EnumerateList:
		return fmt.Sprintf("EnumerateList(r%d -> r%d)", o.InReg, o.OutReg)
	case *IndexRange:
		return fmt.Sprintf("IndexRange(%s/%s, %d disjunct(s) -> r%d)", o.Collection, o.Index, len(o.Disjuncts), o.OutReg)
	case *Calculation:
		return fmt.Sprintf("Calculation(-> r%d)", o.OutReg)
	case *Filter:
		return fmt.Sprintf("Filter(r%d)", o.CondReg)
	case *Aggregate:
		return fmt.Sprintf("Aggregate(mode=%v, %d group key(s) -> r%d)", o.Mode, len(o.GroupRegs), o.OutReg)
	case *Sort:
		return fmt.Sprintf("Sort(%d key(s), stable=%v)", len(o.Keys), o.Stable)
	case *Limit:
		return fmt.Sprintf("Limit(offset=%d, count=%d, fullCount=%v)", o.Offset, o.MaxRows, o.FullCount)
	case *Return:
		if o.CountMode {
			return "Return(COUNT)"
		}
		return fmt.Sprintf("Return(r%d)", o.InReg)
	case *Modify:
		return fmt.Sprintf("Modify(%v %s, edge=%v, sharded=%v)", o.Kind, o.Collection, o.EdgeCollection, o.Sharded)
	case *Subquery:
		return fmt.Sprintf("Subquery(-> r%d, reuse=%v)", o.OutReg, o.Reuse)
	case *Gather:
		mode := "simple"
		if len(o.Keys) > 0 {
			mode = fmt.Sprintf("sorted, %d key(s)", len(o.Keys))
		}
		return fmt.Sprintf("Gather(%d client(s), %s)", len(o.Dependencies), mode)
	case *Scatter:
		return fmt.Sprintf("Scatter(%d client(s))", o.NumClients)
	case *Distribute:
		return fmt.Sprintf("Distribute(%s, %d queued shard(s))", o.Collection, len(o.queues))
	case *Remote:
		return fmt.Sprintf("Remote(%s, node=%s)", o.BaseURL, o.NodeID)
	default:
		return fmt.Sprintf("%T", op)
	}
}
