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
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/arangodb/aqlengine/engine"
)

// newTestEngine builds an *engine.Engine wired to trx/cluster, with a
// generous default batch size so tests don't need to reason about
// multi-call pagination unless they want to.
func newTestEngine(trx engine.Transaction, cluster engine.ClusterInfo) *engine.Engine {
	cfg := engine.DefaultConfig()
	cfg.DefaultBatchSize = 16
	return engine.New(cfg, trx, cluster, nil)
}

// drainJSON runs a GetSome loop to exhaustion against op, collecting
// ToJSON() of register 0 from every row — the shape Return(...) leaves
// a plan in.
func drainJSON(t interface{ Fatal(...any) }, ctx context.Context, op Operator) []any {
	var out []any
	for {
		blk, err := op.GetSome(ctx, 1, 8)
		if err != nil {
			t.Fatal(err)
		}
		if blk == nil {
			return out
		}
		for i := 0; i < blk.NumRows(); i++ {
			jv, err := blk.Get(i, 0).ToJSON(nil)
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, jv)
		}
		blk.Destroy()
	}
}

// fakeTransaction is an in-memory engine.Transaction good enough to drive
// the modification family and EnumerateCollection end to end in tests.
type fakeTransaction struct {
	mu      sync.Mutex
	docs    map[string]map[string]map[string]any // collection -> key -> body
	nextKey int
}

func newFakeTransaction() *fakeTransaction {
	return &fakeTransaction{docs: make(map[string]map[string]map[string]any)}
}

func (f *fakeTransaction) seed(collection, key string, body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	b := make(map[string]any, len(body)+1)
	for k, v := range body {
		b[k] = v
	}
	b["_key"] = key
	f.docs[collection][key] = b
}

func (f *fakeTransaction) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[collection])
}

func (f *fakeTransaction) has(collection, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[collection][key]
	return ok
}

type fakeScanner struct {
	docs []engine.Document
	pos  int
}

func (s *fakeScanner) Scan(ctx context.Context, out []engine.Document, hint engine.ScanHint) ([]engine.Document, error) {
	if s.pos >= len(s.docs) {
		return out, nil
	}
	end := s.pos + hint.Min
	if end > len(s.docs) {
		end = len(s.docs)
	}
	out = append(out, s.docs[s.pos:end]...)
	s.pos = end
	return out, nil
}

func (s *fakeScanner) Close() error { return nil }

func (f *fakeTransaction) Scanner(ctx context.Context, collection string, random bool) (engine.Scanner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make([]engine.Document, 0, len(f.docs[collection]))
	for k, body := range f.docs[collection] {
		docs = append(docs, engine.Document{Key: k, Body: body})
	}
	return &fakeScanner{docs: docs}, nil
}

// fakeIndexIterator serves Documents already matched by fakeTransaction.Lookup.
type fakeIndexIterator struct {
	docs []engine.Document
	pos  int
}

func (it *fakeIndexIterator) Next(ctx context.Context, out []engine.Document, atMost int) ([]engine.Document, error) {
	end := it.pos + atMost
	if end > len(it.docs) {
		end = len(it.docs)
	}
	out = append(out, it.docs[it.pos:end]...)
	it.pos = end
	return out, nil
}

func (it *fakeIndexIterator) Close() error { return nil }

// Lookup is a minimal in-memory stand-in for a real index: it linearly
// scans the collection (in key order, for determinism) and keeps the
// documents satisfying every Bound in ops.([]Bound). Good enough to drive
// IndexRange end to end without a real storage engine.
func (f *fakeTransaction) Lookup(ctx context.Context, collection, index, kind string, ops any) (engine.IndexIterator, error) {
	bounds, ok := ops.([]Bound)
	if !ok {
		return nil, fmt.Errorf("fakeTransaction: Lookup expects []Bound, got %T", ops)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.docs[collection]))
	for k := range f.docs[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var matched []engine.Document
	for _, k := range keys {
		body := f.docs[collection][k]
		if boundsMatch(bounds, k, body) {
			matched = append(matched, engine.Document{Key: k, Body: body})
		}
	}
	return &fakeIndexIterator{docs: matched}, nil
}

func boundsMatch(bounds []Bound, key string, body map[string]any) bool {
	for _, b := range bounds {
		var val any
		if b.Attr == "_key" || b.Attr == "_id" {
			val = key
		} else {
			val = body[b.Attr]
		}
		if !boundMatch(b, val) {
			return false
		}
	}
	return true
}

func boundMatch(b Bound, val any) bool {
	switch b.Op {
	case OpEQ:
		return reflect.DeepEqual(val, b.Const)
	case OpGE, OpLE, OpGT, OpLT:
		vf, vok := toFloatForBound(val)
		cf, cok := toFloatForBound(b.Const)
		if !vok || !cok {
			return false
		}
		switch b.Op {
		case OpGE:
			return vf >= cf
		case OpLE:
			return vf <= cf
		case OpGT:
			return vf > cf
		case OpLT:
			return vf < cf
		}
	}
	return false
}

func toFloatForBound(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func (f *fakeTransaction) ReadDocument(ctx context.Context, collection, key string) (engine.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.docs[collection][key]
	if !ok {
		return engine.Document{}, engine.NewError(engine.DocumentNotFound, "document %s/%s not found", collection, key)
	}
	return engine.Document{Key: key, Body: body}, nil
}

func (f *fakeTransaction) CreateDocument(ctx context.Context, collection string, body map[string]any) (engine.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, _ := body["_key"].(string)
	if key == "" {
		f.nextKey++
		key = fmt.Sprintf("gen%d", f.nextKey)
	}
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	if _, exists := f.docs[collection][key]; exists {
		return engine.Document{}, fmt.Errorf("unique constraint violated: %s/%s", collection, key)
	}
	b := make(map[string]any, len(body)+1)
	for k, v := range body {
		b[k] = v
	}
	b["_key"] = key
	f.docs[collection][key] = b
	return engine.Document{Key: key, Body: b}, nil
}

func (f *fakeTransaction) UpdateDocument(ctx context.Context, collection, key string, body map[string]any) (engine.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[collection][key]; !ok {
		return engine.Document{}, engine.NewError(engine.DocumentNotFound, "document %s/%s not found", collection, key)
	}
	b := make(map[string]any, len(body))
	for k, v := range body {
		b[k] = v
	}
	b["_key"] = key
	f.docs[collection][key] = b
	return engine.Document{Key: key, Body: b}, nil
}

func (f *fakeTransaction) ReplaceDocument(ctx context.Context, collection, key string, body map[string]any) (engine.Document, error) {
	return f.UpdateDocument(ctx, collection, key, body)
}

func (f *fakeTransaction) RemoveDocument(ctx context.Context, collection, key string) (engine.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.docs[collection][key]
	if !ok {
		return engine.Document{}, engine.NewError(engine.DocumentNotFound, "document %s/%s not found", collection, key)
	}
	delete(f.docs[collection], key)
	return engine.Document{Key: key, Body: body}, nil
}

func (f *fakeTransaction) GenerateKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextKey++
	return fmt.Sprintf("gen%d", f.nextKey)
}

// chainInit runs Initialize + InitializeCursor(nil, 0) on op, as the engine
// would before the first GetSome call.
func chainInit(ctx context.Context, op Operator) error {
	if err := op.Initialize(ctx); err != nil {
		return err
	}
	return op.InitializeCursor(ctx, nil, 0)
}
