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

// Package wire defines the JSON envelopes exchanged between a coordinator's
// Remote operator and a DB-server's /aql/<op>/<queryId> HTTP endpoints
// (spec.md §6). The query id travels in the URL path and the calling
// shard's identity in the Shard-Id header, so neither is repeated in these
// bodies.
package wire

// Row is a single gathered row, keyed by register index the same way
// value.Block.ToJSONRows names its columns.
type Row = map[string]any

// BlockWire is a Block flattened to JSON for transport.
type BlockWire struct {
	NumRegs int   `json:"numRegs"`
	Rows    []Row `json:"rows"`
}

// ErrorFields is embedded in every response envelope: spec.md §6 says every
// response carries error:boolean and, on error, errorNum and errorMessage.
type ErrorFields struct {
	Error        bool   `json:"error"`
	ErrorNum     int    `json:"errorNum,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// StatsWire mirrors engine.Stats across the wire.
type StatsWire struct {
	WritesExecuted int64 `json:"writesExecuted"`
	WritesIgnored  int64 `json:"writesIgnored"`
	ScannedFull    int64 `json:"scannedFull"`
	ScannedIndex   int64 `json:"scannedIndex"`
	Filtered       int64 `json:"filtered"`
	FullCount      int64 `json:"fullCount"`
}

// InitializeCursorRequest is the body of PUT /aql/initializeCursor/<queryId>:
// either {exhausted:true} or {pos, items, exhausted:false}.
type InitializeCursorRequest struct {
	Exhausted bool       `json:"exhausted"`
	Pos       int        `json:"pos,omitempty"`
	Items     *BlockWire `json:"items,omitempty"`
}

// InitializeCursorResponse is returned by PUT /aql/initializeCursor/<queryId>.
type InitializeCursorResponse struct {
	ErrorFields
	Stats *StatsWire `json:"stats,omitempty"`
}

// ShutdownRequest is the body of PUT /aql/shutdown/<queryId>.
type ShutdownRequest struct {
	Code int `json:"code"`
}

// ShutdownResponse is returned by PUT /aql/shutdown/<queryId>.
type ShutdownResponse struct {
	ErrorFields
	Stats *StatsWire `json:"stats,omitempty"`
}

// GetSomeRequest is the body of PUT /aql/getSome/<queryId>.
type GetSomeRequest struct {
	AtLeast int `json:"atLeast"`
	AtMost  int `json:"atMost"`
}

// GetSomeResponse is either a serialized block or {exhausted:true}.
type GetSomeResponse struct {
	ErrorFields
	Exhausted bool       `json:"exhausted,omitempty"`
	NumRegs   int        `json:"numRegs,omitempty"`
	Rows      []Row      `json:"rows,omitempty"`
	Stats     *StatsWire `json:"stats,omitempty"`
}

// SkipSomeRequest is the body of PUT /aql/skipSome/<queryId>.
type SkipSomeRequest struct {
	AtLeast int `json:"atLeast"`
	AtMost  int `json:"atMost"`
}

// SkipSomeResponse is returned by PUT /aql/skipSome/<queryId>.
type SkipSomeResponse struct {
	ErrorFields
	Skipped int        `json:"skipped"`
	Stats   *StatsWire `json:"stats,omitempty"`
}

// HasMoreResponse answers GET /aql/hasMore/<queryId>.
type HasMoreResponse struct {
	ErrorFields
	HasMore bool `json:"hasMore"`
}

// RemainingResponse answers GET /aql/remaining/<queryId>. Remaining == -1
// means unknown, matching the pull protocol's convention throughout.
type RemainingResponse struct {
	ErrorFields
	Remaining int64 `json:"remaining"`
}

// CountResponse answers GET /aql/count/<queryId>.
type CountResponse struct {
	ErrorFields
	Count int64 `json:"count"`
}
