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

package wire

import (
	"errors"
	"testing"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

func TestToFromBlockWireRoundTrip(t *testing.T) {
	blk := value.NewBlock(2, 12)
	blk.Set(0, 0, value.NewJSON("a"))
	blk.Set(0, 11, value.NewJSON(float64(1)))
	blk.Set(1, 0, value.NewJSON("b"))
	blk.Set(1, 11, value.NewJSON(float64(2)))

	bw, err := ToBlockWire(blk)
	if err != nil {
		t.Fatal(err)
	}
	if bw.NumRegs != 12 {
		t.Fatalf("NumRegs = %d, want 12", bw.NumRegs)
	}
	if len(bw.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(bw.Rows))
	}
	// register 11 (>= 10) must round-trip through regKey's multi-digit path.
	if bw.Rows[0]["r11"] != float64(1) {
		t.Fatalf("row 0 r11 = %v, want 1", bw.Rows[0]["r11"])
	}

	back := FromBlockWire(bw)
	defer back.Destroy()
	if back.NumRows() != 2 || back.NumRegs() != 12 {
		t.Fatalf("got %dx%d block, want 2x12", back.NumRows(), back.NumRegs())
	}
	jv, err := back.Get(1, 0).ToJSON(nil)
	if err != nil {
		t.Fatal(err)
	}
	if jv != "b" {
		t.Fatalf("row 1 reg 0 = %v, want b", jv)
	}
	jv, err = back.Get(0, 11).ToJSON(nil)
	if err != nil {
		t.Fatal(err)
	}
	if jv != float64(1) {
		t.Fatalf("row 0 reg 11 = %v, want 1", jv)
	}
}

func TestToBlockWireNil(t *testing.T) {
	bw, err := ToBlockWire(nil)
	if err != nil || bw != nil {
		t.Fatalf("ToBlockWire(nil) = %v, %v, want nil, nil", bw, err)
	}
}

func TestFromBlockWireNil(t *testing.T) {
	if FromBlockWire(nil) != nil {
		t.Fatal("FromBlockWire(nil) should return nil")
	}
}

func TestErrorFieldsRoundTrip(t *testing.T) {
	orig := engine.NewError(engine.DocumentNotFound, "missing %s", "d1")
	ef := ToErrorFields(orig)
	if !ef.Error {
		t.Fatal("Error should be true for a non-nil err")
	}
	if ef.ErrorNum != int(engine.DocumentNotFound) {
		t.Fatalf("ErrorNum = %d, want %d", ef.ErrorNum, engine.DocumentNotFound)
	}
	back := FromErrorFields(ef)
	if engine.CodeOf(back) != engine.DocumentNotFound {
		t.Fatalf("round-tripped code = %d, want DocumentNotFound", engine.CodeOf(back))
	}
	if back.Error() != orig.Error() {
		t.Fatalf("message = %q, want %q", back.Error(), orig.Error())
	}
}

func TestErrorFieldsNoError(t *testing.T) {
	ef := ToErrorFields(nil)
	if ef.Error {
		t.Fatal("ToErrorFields(nil).Error should be false")
	}
	if FromErrorFields(ef) != nil {
		t.Fatal("FromErrorFields of a no-error envelope should return nil")
	}
}

func TestErrorFieldsWrapsPlainError(t *testing.T) {
	ef := ToErrorFields(errors.New("boom"))
	if ef.ErrorNum != int(engine.Internal) {
		t.Fatalf("ErrorNum = %d, want Internal for a plain error", ef.ErrorNum)
	}
}

func TestStatsWireRoundTrip(t *testing.T) {
	s := engine.NewStats()
	s.WritesExecuted = 7
	s.ScannedFull = 3
	s.FullCount = 42

	sw := ToStatsWire(s)
	back := FromStatsWire(sw)
	if back.WritesExecuted != 7 || back.ScannedFull != 3 || back.FullCount != 42 {
		t.Fatalf("round-tripped stats = %+v", back)
	}
}

func TestStatsWireNil(t *testing.T) {
	if ToStatsWire(nil) != nil {
		t.Fatal("ToStatsWire(nil) should return nil")
	}
	if FromStatsWire(nil) != nil {
		t.Fatal("FromStatsWire(nil) should return nil")
	}
}
