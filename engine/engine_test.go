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

package engine

import "testing"

func TestNewEngineDefaultsConfig(t *testing.T) {
	e := New(nil, nil, nil, nil)
	if e.Config == nil {
		t.Fatal("New(nil config) should fall back to DefaultConfig")
	}
	if e.Config.DefaultBatchSize != DefaultConfig().DefaultBatchSize {
		t.Fatalf("DefaultBatchSize = %d, want %d", e.Config.DefaultBatchSize, DefaultConfig().DefaultBatchSize)
	}
}

func TestKillAndCheckKilled(t *testing.T) {
	e := New(nil, nil, nil, nil)
	if e.Killed() {
		t.Fatal("fresh engine should not be killed")
	}
	if err := e.CheckKilled(); err != nil {
		t.Fatalf("CheckKilled on live engine: %v", err)
	}
	e.Kill()
	if !e.Killed() {
		t.Fatal("Killed() should report true after Kill()")
	}
	err := e.CheckKilled()
	if err == nil {
		t.Fatal("CheckKilled should error once killed")
	}
	if CodeOf(err) != QueryKilled {
		t.Fatalf("CheckKilled error code = %d, want QueryKilled", CodeOf(err))
	}
}

func TestEachEngineGetsAUniqueQueryID(t *testing.T) {
	e1 := New(nil, nil, nil, nil)
	e2 := New(nil, nil, nil, nil)
	if e1.QueryID == e2.QueryID {
		t.Fatal("two engines should not share a query id")
	}
}
