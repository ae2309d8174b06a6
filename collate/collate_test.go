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

package collate

import "testing"

func TestCompareOrdering(t *testing.T) {
	if c := Compare("apple", "banana"); c >= 0 {
		t.Fatalf("Compare(apple, banana) = %d, want < 0", c)
	}
	if c := Compare("banana", "apple"); c <= 0 {
		t.Fatalf("Compare(banana, apple) = %d, want > 0", c)
	}
	if c := Compare("same", "same"); c != 0 {
		t.Fatalf("Compare(same, same) = %d, want 0", c)
	}
}

func TestCompareStableAcrossCalls(t *testing.T) {
	first := Compare("alpha", "beta")
	for i := 0; i < 10; i++ {
		if c := Compare("alpha", "beta"); c != first {
			t.Fatalf("Compare is not stable: call %d got %d, want %d", i, c, first)
		}
	}
}
