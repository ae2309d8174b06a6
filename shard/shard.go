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

// Package shard provides the shard-key hashing consulted by the Distribute
// operator (spec.md §4.7) to pick a destination DB-server for a row, and a
// fake ClusterInfo implementation usable in tests.
package shard

import (
	"fmt"

	"github.com/dchest/siphash"
)

// key0/key1 are fixed siphash keys; in a real cluster these would be
// negotiated cluster-wide at bootstrap so that every coordinator computes
// the same shard assignment for the same key. A fixed pair is sufficient
// for a single-process engine instance.
const (
	key0 = 0x0123456789abcdef
	key1 = 0xfedcba9876543210
)

// KeyHash hashes the byte encoding of a shard-key tuple the same way for
// every caller, mirroring the teacher's own siphash-based partition
// splitting (plan/input.go, splitter.go).
func KeyHash(parts ...[]byte) uint64 {
	h := siphash.New(keyBytes())
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum64()
}

func keyBytes() []byte {
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		b[i] = byte(key0 >> (8 * i))
		b[8+i] = byte(key1 >> (8 * i))
	}
	return b
}

// Info is the out-of-scope cluster-metadata collaborator (spec.md §1):
// shard-id resolution for a collection given its shard-key attribute
// values, and the set of DB-servers hosting each collection.
type Info interface {
	// NumShards returns the number of shards for the named collection.
	NumShards(collection string) (int, error)

	// ShardForKey returns the destination shard index in [0, NumShards)
	// for the given shard-key attribute values.
	ShardForKey(collection string, keyParts ...[]byte) (int, error)

	// IsDefaultSharded reports whether the collection is sharded by its
	// document-key attribute (so Distribute may auto-generate missing
	// keys and must forbid caller-supplied keys only when this is false).
	IsDefaultSharded(collection string) (bool, error)
}

// Static is a fixed-shard-count Info usable directly in tests and in any
// deployment where shard membership does not change during a query.
type Static struct {
	Shards         map[string]int
	DefaultSharded map[string]bool
}

func (s *Static) NumShards(collection string) (int, error) {
	n, ok := s.Shards[collection]
	if !ok {
		return 0, fmt.Errorf("shard: unknown collection %q", collection)
	}
	return n, nil
}

func (s *Static) ShardForKey(collection string, keyParts ...[]byte) (int, error) {
	n, err := s.NumShards(collection)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("shard: collection %q has no shards", collection)
	}
	h := KeyHash(keyParts...)
	return int(h % uint64(n)), nil
}

func (s *Static) IsDefaultSharded(collection string) (bool, error) {
	if s.DefaultSharded == nil {
		return true, nil
	}
	v, ok := s.DefaultSharded[collection]
	if !ok {
		return true, nil
	}
	return v, nil
}
