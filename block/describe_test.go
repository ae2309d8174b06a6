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
	"bytes"
	"strings"
	"testing"
)

func TestDescribeWalksTree(t *testing.T) {
	eng := newTestEngine(newFakeTransaction(), nil)

	single := NewSingleton(eng)
	el := NewEnumerateList(eng, single, 0, 0)
	filt := NewFilter(eng, el, 0)
	ret := NewReturn(eng, filt, 0)

	var buf bytes.Buffer
	if err := Describe(ret, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Return(") {
		t.Errorf("line 0 = %q, want Return(...) at depth 0", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  Filter(") {
		t.Errorf("line 1 = %q, want indented Filter(...)", lines[1])
	}
	if !strings.HasPrefix(lines[2], "    EnumerateList(") {
		t.Errorf("line 2 = %q, want EnumerateList(...) at depth 2", lines[2])
	}
	if !strings.HasPrefix(lines[3], "      Singleton") {
		t.Errorf("line 3 = %q, want Singleton at depth 3", lines[3])
	}
}

func TestDescribeMultiDependency(t *testing.T) {
	eng := newTestEngine(newFakeTransaction(), nil)

	outer := NewSingleton(eng)
	inner := NewSingleton(eng)
	sub := NewSubquery(eng, outer, inner, 0)

	var buf bytes.Buffer
	if err := Describe(sub, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "Singleton") != 2 {
		t.Fatalf("expected both Subquery dependencies to be visited, got:\n%s", out)
	}
}
