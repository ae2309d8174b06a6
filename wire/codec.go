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
	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// ToBlockWire flattens blk to its wire form; the caller still owns blk.
func ToBlockWire(blk *value.Block) (*BlockWire, error) {
	if blk == nil {
		return nil, nil
	}
	rows, err := blk.ToJSONRows(nil)
	if err != nil {
		return nil, err
	}
	out := &BlockWire{NumRegs: blk.NumRegs(), Rows: make([]Row, len(rows))}
	for i, r := range rows {
		m, _ := r.(map[string]any)
		out.Rows[i] = m
	}
	return out, nil
}

// FromBlockWire rematerializes a wire block as an owned value.Block. A
// wire-transported row is always JSON-tagged: a Shaped value cannot
// survive serialization without its Collection, so by the time a block
// crosses the wire every cell has already been resolved to plain JSON.
func FromBlockWire(bw *BlockWire) *value.Block {
	if bw == nil {
		return nil
	}
	blk := value.NewBlock(len(bw.Rows), bw.NumRegs)
	for i, row := range bw.Rows {
		for j := 0; j < bw.NumRegs; j++ {
			v, ok := row[regKey(j)]
			if !ok {
				continue
			}
			blk.Set(i, j, value.NewJSON(v))
		}
	}
	return blk
}

func regKey(reg int) string {
	const digits = "0123456789"
	if reg < 10 {
		return "r" + string(digits[reg])
	}
	buf := []byte{'r'}
	var s []byte
	for reg > 0 {
		s = append(s, digits[reg%10])
		reg /= 10
	}
	for i := len(s) - 1; i >= 0; i-- {
		buf = append(buf, s[i])
	}
	return string(buf)
}

// ToErrorFields converts err (nil-safe) to its wire form.
func ToErrorFields(err error) ErrorFields {
	if err == nil {
		return ErrorFields{}
	}
	return ErrorFields{Error: true, ErrorNum: int(engine.CodeOf(err)), ErrorMessage: err.Error()}
}

// FromErrorFields reconstructs an *engine.Error from its wire form, or nil
// if ef reports no error.
func FromErrorFields(ef ErrorFields) error {
	if !ef.Error {
		return nil
	}
	return engine.NewError(engine.Code(ef.ErrorNum), "%s", ef.ErrorMessage)
}

// ToStatsWire snapshots stats to its wire form.
func ToStatsWire(s *engine.Stats) *StatsWire {
	if s == nil {
		return nil
	}
	return &StatsWire{
		WritesExecuted: s.WritesExecuted,
		WritesIgnored:  s.WritesIgnored,
		ScannedFull:    s.ScannedFull,
		ScannedIndex:   s.ScannedIndex,
		Filtered:       s.Filtered,
		FullCount:      s.FullCount,
	}
}

// FromStatsWire converts a wire stats snapshot back to *engine.Stats.
func FromStatsWire(sw *StatsWire) *engine.Stats {
	if sw == nil {
		return nil
	}
	return &engine.Stats{
		WritesExecuted: sw.WritesExecuted,
		WritesIgnored:  sw.WritesIgnored,
		ScannedFull:    sw.ScannedFull,
		ScannedIndex:   sw.ScannedIndex,
		Filtered:       sw.Filtered,
		FullCount:      sw.FullCount,
	}
}
