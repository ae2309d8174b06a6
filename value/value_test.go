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

import "testing"

func TestIsArrayish(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"range", NewRange(0, 5), true},
		{"jsonArray", NewJSON([]any{1.0, 2.0}), true},
		{"jsonScalar", NewJSON(3.0), false},
		{"empty", NewEmpty(), false},
		{"shaped", NewShaped([]byte("x"), nil), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.v.IsArrayish(); got != c.want {
				t.Fatalf("IsArrayish() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestRangeElements(t *testing.T) {
	v := NewRange(10, 15)
	elems := v.Elements()
	if len(elems) != 5 {
		t.Fatalf("len(elements) = %d, want 5", len(elems))
	}
	for i, e := range elems {
		want := float64(10 + i)
		if e.JSONValue() != want {
			t.Errorf("elements[%d] = %v, want %v", i, e.JSONValue(), want)
		}
	}
}

func TestRangeElementsEmpty(t *testing.T) {
	v := NewRange(5, 5)
	if elems := v.Elements(); len(elems) != 0 {
		t.Fatalf("len(elements) = %d, want 0", len(elems))
	}
	v2 := NewRange(5, 2)
	if elems := v2.Elements(); len(elems) != 0 {
		t.Fatalf("len(elements) for inverted range = %d, want 0", len(elems))
	}
}

func TestCloneJSONIsDeep(t *testing.T) {
	orig := map[string]any{"a": []any{1.0, 2.0}}
	v := NewJSON(orig)
	cl := v.Clone()

	// Mutating the clone's nested slice must not affect the original.
	clMap := cl.JSONValue().(map[string]any)
	clMap["a"].([]any)[0] = 99.0

	origSlice := orig["a"].([]any)
	if origSlice[0] != 1.0 {
		t.Fatalf("mutating clone affected original: %v", origSlice[0])
	}
}

func TestCompareTypedOrder(t *testing.T) {
	vals := []Value{
		NewEmpty(),
		NewJSON(false),
		NewJSON(1.0),
		NewJSON("s"),
		NewJSON([]any{1.0}),
		NewJSON(map[string]any{"k": 1.0}),
	}
	for i := 0; i < len(vals)-1; i++ {
		c, err := Compare(nil, vals[i], vals[i+1])
		if err != nil {
			t.Fatalf("Compare: %v", err)
		}
		if c >= 0 {
			t.Errorf("Compare(%s, %s) = %d, want < 0", vals[i].ToString(), vals[i+1].ToString(), c)
		}
	}
}

func TestCompareNumbers(t *testing.T) {
	c, err := Compare(nil, NewJSON(1.0), NewJSON(2.0))
	if err != nil {
		t.Fatal(err)
	}
	if c >= 0 {
		t.Fatalf("Compare(1,2) = %d, want < 0", c)
	}
	c, err = Compare(nil, NewJSON(2.0), NewJSON(2.0))
	if err != nil {
		t.Fatal(err)
	}
	if c != 0 {
		t.Fatalf("Compare(2,2) = %d, want 0", c)
	}
}

func TestCompareStringsStable(t *testing.T) {
	a, b := NewJSON("apple"), NewJSON("banana")
	c1, _ := Compare(nil, a, b)
	c2, _ := Compare(nil, a, b)
	if c1 != c2 {
		t.Fatalf("Compare is not stable across calls: %d vs %d", c1, c2)
	}
	if c1 >= 0 {
		t.Fatalf("Compare(apple, banana) = %d, want < 0", c1)
	}
}

func TestToJSONRange(t *testing.T) {
	v := NewRange(2, 5)
	jv, err := v.ToJSON(nil)
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := jv.([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("ToJSON(range) = %v, want [2 3 4]", jv)
	}
}

func TestToJSONShapedRequiresResolver(t *testing.T) {
	v := NewShaped([]byte("doc1"), nil)
	if _, err := v.ToJSON(nil); err == nil {
		t.Fatal("expected error resolving Shaped value without a Resolver")
	}
}

type fakeResolver struct{}

func (fakeResolver) ResolveShaped(doc []byte, coll Collection) (any, error) {
	return map[string]any{"_key": string(doc)}, nil
}

func TestToJSONShapedWithResolver(t *testing.T) {
	v := NewShaped([]byte("doc1"), nil)
	jv, err := v.ToJSON(fakeResolver{})
	if err != nil {
		t.Fatal(err)
	}
	obj, ok := jv.(map[string]any)
	if !ok || obj["_key"] != "doc1" {
		t.Fatalf("ToJSON(shaped) = %v", jv)
	}
}
