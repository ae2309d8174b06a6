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

package value

// cell is the unit of sharing inside a Block: several (row, register)
// positions may point at the same cell when an operator projects one row's
// inherited registers into every other row (spec.md §4.1). The Block keeps
// a refcount per cell so that Steal knows whether it is safe to hand the
// value out without copying.
type cell struct {
	v Value
}

// Block is the row x register table described in spec.md §3: a 2-D table
// with per-register collection pointers, where a value may be referenced
// from more than one cell as long as the block tracks how many times.
type Block struct {
	nrows int
	nregs int

	rows        [][]*cell    // rows[row][reg], nil means Empty
	collections []Collection // per-register collection pointer

	refs map[*cell]int
}

// NewBlock allocates an all-Empty block of the given shape.
func NewBlock(nrows, nregs int) *Block {
	b := &Block{
		nrows:       nrows,
		nregs:       nregs,
		rows:        make([][]*cell, nrows),
		collections: make([]Collection, nregs),
		refs:        make(map[*cell]int),
	}
	for i := range b.rows {
		b.rows[i] = make([]*cell, nregs)
	}
	return b
}

// NumRows returns the number of rows currently in the block.
func (b *Block) NumRows() int { return b.nrows }

// NumRegs returns the register width of the block.
func (b *Block) NumRegs() int { return b.nregs }

// Collection returns the collection pointer associated with register reg.
func (b *Block) Collection(reg int) Collection { return b.collections[reg] }

// SetCollection associates a collection pointer with register reg, used
// by sources that emit Shaped values into that register.
func (b *Block) SetCollection(reg int, c Collection) { b.collections[reg] = c }

func (b *Block) retain(c *cell) {
	if c == nil {
		return
	}
	b.refs[c]++
}

func (b *Block) release(c *cell) {
	if c == nil {
		return
	}
	n := b.refs[c] - 1
	if n <= 0 {
		delete(b.refs, c)
		c.v.Destroy()
		return
	}
	b.refs[c] = n
}

// Get returns the value at (row, reg), or the Empty value if the cell is
// unset.
func (b *Block) Get(row, reg int) Value {
	c := b.rows[row][reg]
	if c == nil {
		return Value{Tag: Empty}
	}
	return c.v
}

// Set stores an owned value at (row, reg), replacing (and releasing)
// whatever was there before. The new cell starts with refcount 1.
func (b *Block) Set(row, reg int, v Value) {
	b.release(b.rows[row][reg])
	if v.IsEmpty() {
		b.rows[row][reg] = nil
		return
	}
	c := &cell{v: v}
	b.rows[row][reg] = c
	b.retain(c)
}

// SetShared copies the cell currently at (srcRow, reg) into (dstRow, reg)
// by reference, incrementing the shared refcount instead of cloning. This
// is the operation operators use to project one row's inherited registers
// into every other row cheaply (spec.md §4.1).
func (b *Block) SetShared(dstRow, srcRow, reg int) {
	src := b.rows[srcRow][reg]
	b.release(b.rows[dstRow][reg])
	b.rows[dstRow][reg] = src
	b.retain(src)
}

// ValueCount returns the number of live references to the value stored at
// (row, reg) within this block.
func (b *Block) ValueCount(row, reg int) int {
	c := b.rows[row][reg]
	if c == nil {
		return 0
	}
	return b.refs[c]
}

// Erase clears the cell at (row, reg) without returning its value,
// releasing a reference (and destroying the value if that was the last
// one).
func (b *Block) Erase(row, reg int) {
	b.release(b.rows[row][reg])
	b.rows[row][reg] = nil
}

// Steal transfers ownership of the value at (row, reg) to the caller.
// If the cell is uniquely referenced (ValueCount == 1) the live value is
// handed back directly and the cell cleared without invoking Destroy; if it
// is shared, the cell is cleared here, the reference count decremented, and
// the caller receives a Clone so that the other references remain valid
// (spec.md §3: "forcing callers to clone when migrating values into a new
// block while preserving the original").
func (b *Block) Steal(row, reg int) Value {
	c := b.rows[row][reg]
	if c == nil {
		return Value{Tag: Empty}
	}
	n := b.refs[c]
	if n <= 1 {
		delete(b.refs, c)
		b.rows[row][reg] = nil
		return c.v
	}
	b.refs[c] = n - 1
	b.rows[row][reg] = nil
	return c.v.Clone()
}

// destroyValues releases every cell once, used when a whole block (such as
// a DocVec child) is being torn down.
func (b *Block) destroyValues() {
	for c := range b.refs {
		c.v.Destroy()
	}
	b.refs = make(map[*cell]int)
	for i := range b.rows {
		for j := range b.rows[i] {
			b.rows[i][j] = nil
		}
	}
}

// Destroy releases every value owned by the block. Safe to call multiple
// times.
func (b *Block) Destroy() { b.destroyValues() }

// Clone deep-copies the block: every live cell is cloned independently, so
// the result shares no cells (and hence no refcounts) with the source.
func (b *Block) Clone() *Block {
	out := NewBlock(b.nrows, b.nregs)
	copy(out.collections, b.collections)
	for i := 0; i < b.nrows; i++ {
		for j := 0; j < b.nregs; j++ {
			v := b.Get(i, j)
			if !v.IsEmpty() {
				out.Set(i, j, v.Clone())
			}
		}
	}
	return out
}

// Slice creates a new block owning cloned contents for rows [from, to).
func (b *Block) Slice(from, to int) *Block {
	n := to - from
	out := NewBlock(n, b.nregs)
	copy(out.collections, b.collections)
	for i := 0; i < n; i++ {
		for j := 0; j < b.nregs; j++ {
			v := b.Get(from+i, j)
			if !v.IsEmpty() {
				out.Set(i, j, v.Clone())
			}
		}
	}
	return out
}

// SliceIndices creates a new block with cloned contents taken from the
// given row indices, in the order given (the "permuted variant" of Slice).
func (b *Block) SliceIndices(indices []int) *Block {
	out := NewBlock(len(indices), b.nregs)
	copy(out.collections, b.collections)
	for i, src := range indices {
		for j := 0; j < b.nregs; j++ {
			v := b.Get(src, j)
			if !v.IsEmpty() {
				out.Set(i, j, v.Clone())
			}
		}
	}
	return out
}

// StealIndices removes the selected rows from the source block without
// cloning: the new block's cells become the source's cells directly, and
// the source's corresponding positions are cleared. Remaining references
// (if the stolen cells were shared with other rows of the source) are
// decremented, not destroyed.
func (b *Block) StealIndices(indices []int) *Block {
	out := NewBlock(len(indices), b.nregs)
	copy(out.collections, b.collections)
	for i, src := range indices {
		for j := 0; j < b.nregs; j++ {
			c := b.rows[src][j]
			if c == nil {
				continue
			}
			n := b.refs[c]
			if n <= 1 {
				delete(b.refs, c)
			} else {
				b.refs[c] = n - 1
			}
			b.rows[src][j] = nil
			out.rows[i][j] = c
			out.retain(c)
		}
	}
	return out
}

// Concatenate coalesces equally-shaped blocks into one, in order. Cells are
// adopted by reference (their refcounts carry over), so none of the input
// blocks should be used again after this call.
func Concatenate(blocks []*Block) *Block {
	if len(blocks) == 0 {
		return NewBlock(0, 0)
	}
	nregs := blocks[0].nregs
	total := 0
	for _, bl := range blocks {
		total += bl.nrows
	}
	out := NewBlock(0, nregs)
	out.nrows = total
	out.rows = make([][]*cell, 0, total)
	copy(out.collections, blocks[0].collections)
	for _, bl := range blocks {
		out.rows = append(out.rows, bl.rows...)
		for c, n := range bl.refs {
			out.refs[c] += n
		}
	}
	return out
}

// Shrink truncates the row count to n, releasing the dropped rows' values.
func (b *Block) Shrink(n int) {
	if n >= b.nrows {
		return
	}
	for i := n; i < b.nrows; i++ {
		for j := 0; j < b.nregs; j++ {
			b.release(b.rows[i][j])
			b.rows[i][j] = nil
		}
	}
	b.rows = b.rows[:n]
	b.nrows = n
}

// ClearRegisters erases every value in the given columns, across all rows.
func (b *Block) ClearRegisters(regs []int) {
	for _, reg := range regs {
		if reg < 0 || reg >= b.nregs {
			continue
		}
		for i := 0; i < b.nrows; i++ {
			b.release(b.rows[i][reg])
			b.rows[i][reg] = nil
		}
	}
}

// ToJSONRows materializes every row of the block as a JSON object keyed by
// register index, used when a DocVec value is itself converted to JSON.
func (b *Block) ToJSONRows(r Resolver) ([]any, error) {
	out := make([]any, b.nrows)
	for i := 0; i < b.nrows; i++ {
		row := make(map[string]any, b.nregs)
		for j := 0; j < b.nregs; j++ {
			v := b.Get(i, j)
			if v.IsEmpty() {
				continue
			}
			jv, err := v.ToJSON(r)
			if err != nil {
				return nil, err
			}
			row[regKey(j)] = jv
		}
		out[i] = row
	}
	return out, nil
}

func regKey(reg int) string {
	const digits = "0123456789"
	if reg < 10 {
		return "r" + string(digits[reg])
	}
	// fall back to a simple decimal encoding for wider register files
	buf := []byte{'r'}
	s := []byte{}
	for reg > 0 {
		s = append(s, digits[reg%10])
		reg /= 10
	}
	for i := len(s) - 1; i >= 0; i-- {
		buf = append(buf, s[i])
	}
	return string(buf)
}
