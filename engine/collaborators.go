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

import (
	"context"

	"github.com/arangodb/aqlengine/shard"
	"github.com/arangodb/aqlengine/value"
)

// Document is a single stored document as the out-of-scope transaction
// layer (spec.md §1) hands it back: its key, its body, and an opaque
// "collection pointer" good for interpreting any Shaped value that refers
// to it.
type Document struct {
	Key        string
	Body       map[string]any
	Collection value.Collection
}

// ScanHint bounds how many documents a single storage call should try to
// return, per spec.md §4.3 ("scanner.scan(out, hint) where hint >=
// default_batch_size").
type ScanHint struct {
	Min int
}

// Scanner performs a collection scan, handed out by Transaction.Scanner.
type Scanner interface {
	// Scan appends up to cap(out)-len(out) documents and returns the
	// extended slice; an empty return with a nil error means the scan is
	// exhausted.
	Scan(ctx context.Context, out []Document, hint ScanHint) ([]Document, error)
	Close() error
}

// IndexIterator yields document pointers from a single chosen index
// iterator (primary, edge, hash, or skiplist; spec.md §4.3 phase 2/3).
type IndexIterator interface {
	// Next appends up to cap(out)-len(out) documents.
	Next(ctx context.Context, out []Document, atMost int) ([]Document, error)
	Close() error
}

// Transaction is the out-of-scope storage/transaction collaborator
// (spec.md §1): primary/edge/hash/skiplist index lookup, single-document
// read/create/update/remove, key generation.
type Transaction interface {
	Scanner(ctx context.Context, collection string, random bool) (Scanner, error)

	// Lookup opens an index iterator for a pre-built operator tree
	// (spec.md §4.3 phase 2); kind is one of "primary", "edge", "hash",
	// "skiplist".
	Lookup(ctx context.Context, collection, index, kind string, ops any) (IndexIterator, error)

	ReadDocument(ctx context.Context, collection, key string) (Document, error)
	CreateDocument(ctx context.Context, collection string, body map[string]any) (Document, error)
	UpdateDocument(ctx context.Context, collection, key string, body map[string]any) (Document, error)
	ReplaceDocument(ctx context.Context, collection, key string, body map[string]any) (Document, error)
	RemoveDocument(ctx context.Context, collection, key string) (Document, error)

	// GenerateKey produces a fresh document key for a default-sharded
	// collection (spec.md §4.7 Distribute, §4.6 Insert).
	GenerateKey() string
}

// Evaluator is the out-of-scope expression evaluator (spec.md §1):
// evaluate(expression, input-row, input-collections) -> tagged value.
// Expression is left opaque (any) because expression ASTs are themselves
// out of scope (spec.md §1, "Query parsing, AST, optimizer... ").
type Evaluator interface {
	// Evaluate computes expr against one input row of block, resolving
	// any Shaped values through the block's per-register collections.
	Evaluate(ctx context.Context, expr any, block *value.Block, row int) (value.Value, error)

	// Acquire and Release bracket any evaluation that might invoke
	// user-defined code and need a cooperative scripting context
	// (spec.md §4.3, §4.4, §5); Acquire returns a token that Release
	// consumes. Implementations that never need one may make both no-ops.
	Acquire(ctx context.Context) (any, error)
	Release(token any)
}

// ClusterInfo is an alias of shard.Info, kept as its own name in this
// package so callers can depend on "engine.ClusterInfo" without reaching
// into the shard package directly.
type ClusterInfo = shard.Info
