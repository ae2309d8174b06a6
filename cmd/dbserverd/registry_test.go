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
	"testing"

	"github.com/arangodb/aqlengine/engine"
)

func TestRegistryRegisterLookupForget(t *testing.T) {
	r := newRegistry()
	eng := engine.New(nil, nil, nil, nil)

	if _, ok := r.Lookup("q1"); ok {
		t.Fatal("Lookup on an empty registry should miss")
	}

	r.Register("q1", nil, eng)
	node, ok := r.Lookup("q1")
	if !ok || node.Eng != eng {
		t.Fatalf("Lookup after Register = %v, %v", node, ok)
	}

	if _, ok := r.Lookup("q2"); ok {
		t.Fatal("Lookup with a different queryID should miss")
	}

	r.Forget("q1")
	if _, ok := r.Lookup("q1"); ok {
		t.Fatal("Lookup after Forget should miss")
	}
}
