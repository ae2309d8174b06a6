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

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// Distribute partitions its single upstream's rows across NumShards(Collection)
// destinations by hashing the row's shard key (spec.md §4.7). Unlike the
// rest of the operator family it is not itself pulled directly: each
// destination pulls through a Client adapter, and Distribute buffers
// whichever other destinations' rows it had to produce along the way to
// satisfy the one that happened to ask first.
type Distribute struct {
	Base

	Collection string
	Cluster    engine.ClusterInfo
	KeyReg     int  // register holding the document (or bare key) used to shard
	KeyIsDoc   bool // true: KeyReg holds a document with _key; false: KeyReg holds the key string directly
	CreateKeys bool // auto-generate _key for default-sharded collections when absent

	queues       map[int][]*value.Block
	upstreamDone bool
	shutdownDone bool
}

// NewDistribute constructs a Distribute over dep.
func NewDistribute(eng *engine.Engine, dep Operator, collection string, cluster engine.ClusterInfo, keyReg int, keyIsDoc, createKeys bool) *Distribute {
	return &Distribute{
		Base:       Base{Eng: eng, Dependencies: []Operator{dep}},
		Collection: collection,
		Cluster:    cluster,
		KeyReg:     keyReg,
		KeyIsDoc:   keyIsDoc,
		CreateKeys: createKeys,
		queues:     make(map[int][]*value.Block),
	}
}

func (d *Distribute) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := d.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	d.queues = make(map[int][]*value.Block)
	d.upstreamDone = false
	return nil
}

func (d *Distribute) Shutdown(code engine.Code) error {
	if d.shutdownDone {
		return nil
	}
	d.shutdownDone = true
	for _, qs := range d.queues {
		for _, b := range qs {
			b.Destroy()
		}
	}
	d.queues = nil
	return d.Base.Shutdown(code)
}

func (d *Distribute) keyOf(row *value.Block, idx int) (string, map[string]any, error) {
	jv, err := row.Get(idx, d.KeyReg).ToJSON(nil)
	if err != nil {
		return "", nil, err
	}
	if !d.KeyIsDoc {
		s, _ := jv.(string)
		return s, nil, nil
	}
	obj, ok := jv.(map[string]any)
	if !ok {
		return "", nil, engine.NewError(engine.DocumentTypeInvalid, "distribute: expected a document, got %T", jv)
	}
	key, _ := obj["_key"].(string)
	return key, obj, nil
}

// shardFor resolves the destination shard for one row, applying
// create_keys auto-generation and the MUST_NOT_SPECIFY_KEY rule (spec.md
// §4.7): a document carrying its own _key (KeyIsDoc) is rejected on a
// collection that is not sharded by its document key, since the shard key
// there comes from attributes Distribute cannot safely default.
func (d *Distribute) shardFor(row *value.Block, idx int) (int, error) {
	key, obj, err := d.keyOf(row, idx)
	if err != nil {
		return 0, err
	}
	defaultSharded, err := d.Cluster.IsDefaultSharded(d.Collection)
	if err != nil {
		return 0, err
	}
	if key == "" {
		if !d.CreateKeys || !defaultSharded {
			return 0, engine.NewError(engine.DocumentKeyMissing, "distribute: row has no shard key")
		}
		key = d.Eng.Transaction.GenerateKey()
		if obj != nil {
			obj["_key"] = key
			row.Set(idx, d.KeyReg, value.NewJSON(obj))
		}
	} else if !defaultSharded && d.KeyIsDoc {
		return 0, engine.NewError(engine.ClusterMustNotSpecifyKey, "distribute: must not specify _key on a custom-sharded collection")
	}
	return d.Cluster.ShardForKey(d.Collection, []byte(key))
}

// fill pulls one more upstream block (if available) and appends each of
// its rows to its destination shard's queue.
func (d *Distribute) fill(ctx context.Context) error {
	blk, err := d.Dependency().GetSome(ctx, 1, d.Eng.Config.DefaultBatchSize)
	if err != nil {
		return err
	}
	if blk == nil {
		d.upstreamDone = true
		return nil
	}
	byShard := make(map[int][]int)
	for i := 0; i < blk.NumRows(); i++ {
		shard, err := d.shardFor(blk, i)
		if err != nil {
			return err
		}
		byShard[shard] = append(byShard[shard], i)
	}
	for shard, idx := range byShard {
		d.queues[shard] = append(d.queues[shard], blk.SliceIndices(idx))
	}
	blk.Destroy()
	return nil
}

// pullFor is the Client adapters' shared entry point.
func (d *Distribute) pullFor(ctx context.Context, clientID, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	for len(d.queues[clientID]) == 0 {
		if err := d.Eng.CheckKilled(); err != nil {
			return nil, 0, err
		}
		if d.upstreamDone {
			return nil, 0, nil
		}
		if err := d.fill(ctx); err != nil {
			return nil, 0, err
		}
	}
	q := d.queues[clientID]
	front := q[0]
	total := front.NumRows()
	take := total
	if take > atMost {
		take = atMost
	}
	if take == total {
		d.queues[clientID] = q[1:]
		if skipping {
			front.Destroy()
			return nil, take, nil
		}
		return front, take, nil
	}
	headIdx := make([]int, take)
	for i := range headIdx {
		headIdx[i] = i
	}
	tailIdx := make([]int, total-take)
	for i := range tailIdx {
		tailIdx[i] = take + i
	}
	head := front.StealIndices(headIdx)
	tail := front.StealIndices(tailIdx)
	front.Destroy()
	q[0] = tail
	d.queues[clientID] = q
	if skipping {
		head.Destroy()
		return nil, take, nil
	}
	return head, take, nil
}

// Client returns the Operator the destination identified by id should pull
// through; every Client shares d's upstream and queues.
func (d *Distribute) Client(id int) Operator { return &distributeClient{d: d, id: id} }

type distributeClient struct {
	Base
	d  *Distribute
	id int
}

func (c *distributeClient) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := c.d.pullFor(ctx, c.id, atLeast, atMost, false)
	return blk, err
}

func (c *distributeClient) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := c.d.pullFor(ctx, c.id, atLeast, atMost, true)
	return n, err
}

func (c *distributeClient) Skip(ctx context.Context, n int) (bool, error) { return c.Base.Skip(ctx, c, n) }

func (c *distributeClient) HasMore(ctx context.Context) (bool, error) {
	if len(c.d.queues[c.id]) > 0 {
		return true, nil
	}
	return !c.d.upstreamDone, nil
}
