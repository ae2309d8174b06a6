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

// Package collate provides the locale-aware, stable string ordering that
// value.Compare needs for the JSON "string" rank (spec.md §4.1).
package collate

import (
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// col collates under the server default locale; it is process-wide and fixed
// for the lifetime of the engine, matching spec.md's "server default locale"
// requirement (no per-query locale negotiation exists in scope).
var (
	mu  sync.Mutex
	col = collate.New(language.AmericanEnglish)
)

// SetLocale changes the process-wide default locale. It must be called, if
// at all, before any query execution begins: collators are not safe to
// mutate concurrently with Compare calls.
func SetLocale(tag language.Tag) {
	mu.Lock()
	defer mu.Unlock()
	col = collate.New(tag)
}

// Compare returns -1, 0, or 1 according to the current locale's collation
// order. It is safe for concurrent use by multiple goroutines as long as
// SetLocale is not called concurrently with it.
func Compare(a, b string) int {
	mu.Lock()
	defer mu.Unlock()
	return col.CompareString(a, b)
}
