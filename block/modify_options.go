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
	"encoding/json"
	"fmt"
)

// ModifyOptions holds the per-node tunables common to the modification
// family (spec.md §4.6). mergeObjects defaults to true (Update's default
// merge behavior); Replace never consults it.
type ModifyOptions struct {
	IgnoreErrors           bool
	IgnoreDocumentNotFound bool
	WaitForSync            bool
	KeepNull               bool
	MergeObjects           bool

	// ReadCompleteInput requires accumulating every upstream block before
	// processing the first row (Modify.ensureAccumulated) rather than
	// streaming, needed whenever the query reads and writes the same
	// collection (spec.md §4.6).
	ReadCompleteInput bool

	// ReturnNewValues is recognized for parity with the documented option
	// set (spec.md §4.6); which image a Modify node actually returns is
	// selected by its OutOldReg/OutNewReg register wiring, same as
	// WaitForSync is recognized but left to the injected Transaction.
	ReturnNewValues bool
}

// DefaultModifyOptions returns the modification family's documented
// defaults.
func DefaultModifyOptions() ModifyOptions {
	return ModifyOptions{KeepNull: true, MergeObjects: true}
}

// DecodeModifyOptions parses a plan's options object. mergeObjects and its
// older synonym mergeArrays are both accepted (DESIGN.md's Open Question
// decision #3): since a plan should only ever specify one, whichever key
// comes last when scanning the object's tokens in document order wins,
// rather than picking a fixed field priority.
func DecodeModifyOptions(raw []byte) (ModifyOptions, error) {
	opts := DefaultModifyOptions()
	if len(raw) == 0 {
		return opts, nil
	}
	var plain map[string]json.RawMessage
	if err := json.Unmarshal(raw, &plain); err != nil {
		return opts, fmt.Errorf("block: decoding modify options: %w", err)
	}
	if v, ok := plain["ignoreErrors"]; ok {
		json.Unmarshal(v, &opts.IgnoreErrors)
	}
	if v, ok := plain["ignoreDocumentNotFound"]; ok {
		json.Unmarshal(v, &opts.IgnoreDocumentNotFound)
	}
	if v, ok := plain["waitForSync"]; ok {
		json.Unmarshal(v, &opts.WaitForSync)
	}
	if v, ok := plain["keepNull"]; ok {
		json.Unmarshal(v, &opts.KeepNull)
	}
	if v, ok := plain["readCompleteInput"]; ok {
		json.Unmarshal(v, &opts.ReadCompleteInput)
	}
	if v, ok := plain["returnNewValues"]; ok {
		json.Unmarshal(v, &opts.ReturnNewValues)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return opts, fmt.Errorf("block: decoding modify options: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return opts, fmt.Errorf("block: modify options must be a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return opts, err
		}
		key, _ := keyTok.(string)
		var v bool
		if err := dec.Decode(&v); err != nil {
			var skip json.RawMessage
			if err2 := dec.Decode(&skip); err2 != nil {
				return opts, err
			}
			continue
		}
		switch key {
		case "mergeObjects", "mergeArrays":
			opts.MergeObjects = v
		}
	}
	return opts, nil
}
