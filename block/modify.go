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
	"strings"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// ModifyKind selects which of the four modification operations a Modify
// node performs (spec.md §4.6); they share one frame because their
// per-row control flow (read_complete_input vs streaming, key extraction,
// ignoreErrors accounting) is otherwise identical.
type ModifyKind int

const (
	ModifyRemove ModifyKind = iota
	ModifyInsert
	ModifyUpdate
	ModifyReplace
)

// Modify implements Remove/Insert/Update/Replace (spec.md §4.6). Each
// input row supplies either a whole new document (Insert), a document
// carrying its own _key (Remove with no KeyReg), or a patch/replacement
// document plus a separate key (Update/Replace, or Remove with KeyReg
// set). Each successful write emits one output row, holding the old/new
// document in OutOldReg/OutNewReg when those are set (the input row's
// registers are not carried over); errors tolerated by Opts are folded into
// engine.Stats.WritesIgnored instead of aborting the query.
type Modify struct {
	Base

	Kind       ModifyKind
	Collection string
	Opts       ModifyOptions

	InReg     int // register holding the new/patch document (Insert/Update/Replace) or a _key-bearing document (Remove)
	KeyReg    int // -1, or a register holding the key directly
	OutOldReg int // -1 to suppress
	OutNewReg int // -1 to suppress

	// EdgeCollection marks Collection as an edge collection: ModifyInsert
	// then requires and validates _from/_to handles (spec.md §4.6).
	EdgeCollection bool

	// Sharded marks Collection as sharded on this DB-server: a Replace
	// whose pre-image read misses surfaces
	// DocumentNotFoundOrShardingAttributesChanged instead of plain
	// DocumentNotFound (spec.md §4.6).
	Sharded bool

	accumulated bool
}

// NewModify constructs a Modify node of the given kind against collection.
func NewModify(eng *engine.Engine, dep Operator, kind ModifyKind, collection string, inReg, keyReg int, opts ModifyOptions) *Modify {
	return &Modify{
		Base:       Base{Eng: eng, Dependencies: []Operator{dep}},
		Kind:       kind,
		Collection: collection,
		Opts:       opts,
		InReg:      inReg,
		KeyReg:     keyReg,
		OutOldReg:  -1,
		OutNewReg:  -1,
	}
}

func (m *Modify) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := m.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	m.accumulated = false
	return nil
}

// ensureAccumulated implements the read_complete_input option (spec.md
// §4.6): when set (required whenever the query reads and writes the same
// collection, so every row of the read has landed before any write can
// race it), every upstream block is pulled into the shared buffer before
// the main loop processes its first row; otherwise rows stream through as
// they arrive.
func (m *Modify) ensureAccumulated(ctx context.Context) error {
	if !m.Opts.ReadCompleteInput || m.accumulated {
		return nil
	}
	for {
		blk, err := m.Dependency().GetSome(ctx, 1, m.Eng.Config.DefaultBatchSize)
		if err != nil {
			return err
		}
		if blk == nil {
			m.markDone()
			break
		}
		m.pushBuf(blk)
	}
	m.accumulated = true
	return nil
}

// parseHandle splits a document handle of the form "collection/key" used by
// edge _from/_to attributes; ok is false for anything else (spec.md §4.6:
// "missing or malformed _from/_to fail with DOCUMENT_HANDLE_BAD").
func parseHandle(h string) (collection, key string, ok bool) {
	i := strings.IndexByte(h, '/')
	if i <= 0 || i == len(h)-1 {
		return "", "", false
	}
	return h[:i], h[i+1:], true
}

func edgeHandle(body map[string]any, field string) error {
	v, present := body[field]
	if !present {
		return engine.NewError(engine.DocumentHandleBad, "insert: edge document is missing %s", field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return engine.NewError(engine.DocumentHandleBad, "insert: %s must be a non-empty string handle", field)
	}
	if _, _, ok := parseHandle(s); !ok {
		return engine.NewError(engine.DocumentHandleBad, "insert: %s is not a valid collection/key handle: %q", field, s)
	}
	return nil
}

// notFoundCode picks the error code for a pre-image read miss: a sharded
// Replace surfaces DocumentNotFoundOrShardingAttributesChanged since on a
// sharded collection a missing document and a request routed to the wrong
// shard (changed sharding attributes) are indistinguishable to the
// DB-server (spec.md §4.6).
func (m *Modify) notFoundCode() engine.Code {
	if m.Kind == ModifyReplace && m.Sharded {
		return engine.DocumentNotFoundOrShardingAttributesChanged
	}
	return engine.DocumentNotFound
}

func (m *Modify) extractKey(row *value.Block, idx int) (string, error) {
	if m.KeyReg >= 0 {
		jv, err := row.Get(idx, m.KeyReg).ToJSON(nil)
		if err != nil {
			return "", err
		}
		if s, ok := jv.(string); ok && s != "" {
			return s, nil
		}
		return "", engine.NewError(engine.DocumentKeyMissing, "modify: key register held no string key")
	}
	jv, err := row.Get(idx, m.InReg).ToJSON(nil)
	if err != nil {
		return "", err
	}
	obj, ok := jv.(map[string]any)
	if !ok {
		return "", engine.NewError(engine.DocumentTypeInvalid, "modify: expected a document, got %T", jv)
	}
	key, _ := obj["_key"].(string)
	if key == "" {
		return "", engine.NewError(engine.DocumentKeyMissing, "modify: document is missing _key")
	}
	return key, nil
}

func (m *Modify) bodyOf(row *value.Block, idx int) (map[string]any, error) {
	jv, err := row.Get(idx, m.InReg).ToJSON(nil)
	if err != nil {
		return nil, err
	}
	obj, ok := jv.(map[string]any)
	if !ok {
		return nil, engine.NewError(engine.DocumentTypeInvalid, "modify: expected a document, got %T", jv)
	}
	return obj, nil
}

// mergeBody folds patch onto old per opts: nested objects are merged
// recursively when opts.MergeObjects is set (Update's default), or
// replaced wholesale when it is cleared; a null patch value deletes the
// key unless opts.KeepNull is set.
func mergeBody(old, patch map[string]any, opts ModifyOptions) map[string]any {
	out := make(map[string]any, len(old)+len(patch))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			if !opts.KeepNull {
				delete(out, k)
				continue
			}
			out[k] = nil
			continue
		}
		if opts.MergeObjects {
			if ov, ok := out[k].(map[string]any); ok {
				if pv, ok2 := v.(map[string]any); ok2 {
					out[k] = mergeBody(ov, pv, opts)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

// applyOne performs the storage-layer call for a single input row and, on
// success, returns the (old, new) documents actually used/produced. A
// tolerated failure (ignoreErrors / ignoreDocumentNotFound) returns
// ok == false with no error instead of aborting the query.
func (m *Modify) applyOne(ctx context.Context, row *value.Block, idx int) (oldDoc, newDoc engine.Document, ok bool, err error) {
	switch m.Kind {
	case ModifyInsert:
		body, berr := m.bodyOf(row, idx)
		if berr != nil {
			return oldDoc, newDoc, false, m.tolerate(berr)
		}
		if m.EdgeCollection {
			if ferr := edgeHandle(body, "_from"); ferr != nil {
				return oldDoc, newDoc, false, m.tolerate(ferr)
			}
			if terr := edgeHandle(body, "_to"); terr != nil {
				return oldDoc, newDoc, false, m.tolerate(terr)
			}
		}
		doc, cerr := m.Eng.Transaction.CreateDocument(ctx, m.Collection, body)
		if cerr != nil {
			return oldDoc, newDoc, false, m.tolerate(engine.Wrap(engine.UniqueConstraintViolated, cerr))
		}
		return oldDoc, doc, true, nil

	case ModifyRemove:
		key, kerr := m.extractKey(row, idx)
		if kerr != nil {
			return oldDoc, newDoc, false, m.tolerate(kerr)
		}
		prior, rerr := m.Eng.Transaction.ReadDocument(ctx, m.Collection, key)
		if rerr != nil {
			return oldDoc, newDoc, false, m.tolerate(engine.Wrap(engine.DocumentNotFound, rerr))
		}
		doc, rmErr := m.Eng.Transaction.RemoveDocument(ctx, m.Collection, key)
		if rmErr != nil {
			return oldDoc, newDoc, false, m.tolerate(engine.Wrap(engine.DocumentNotFound, rmErr))
		}
		return prior, doc, true, nil

	case ModifyUpdate:
		key, kerr := m.extractKey(row, idx)
		if kerr != nil {
			return oldDoc, newDoc, false, m.tolerate(kerr)
		}
		patch, berr := m.bodyOf(row, idx)
		if berr != nil {
			return oldDoc, newDoc, false, m.tolerate(berr)
		}
		prior, rerr := m.Eng.Transaction.ReadDocument(ctx, m.Collection, key)
		if rerr != nil {
			return oldDoc, newDoc, false, m.tolerate(engine.Wrap(engine.DocumentNotFound, rerr))
		}
		merged := mergeBody(prior.Body, patch, m.Opts)
		doc, uerr := m.Eng.Transaction.UpdateDocument(ctx, m.Collection, key, merged)
		if uerr != nil {
			return oldDoc, newDoc, false, m.tolerate(engine.Wrap(engine.DocumentNotFound, uerr))
		}
		return prior, doc, true, nil

	case ModifyReplace:
		key, kerr := m.extractKey(row, idx)
		if kerr != nil {
			return oldDoc, newDoc, false, m.tolerate(kerr)
		}
		body, berr := m.bodyOf(row, idx)
		if berr != nil {
			return oldDoc, newDoc, false, m.tolerate(berr)
		}
		prior, rerr := m.Eng.Transaction.ReadDocument(ctx, m.Collection, key)
		if rerr != nil {
			return oldDoc, newDoc, false, m.tolerate(engine.NewError(m.notFoundCode(), "%s", rerr.Error()))
		}
		doc, uerr := m.Eng.Transaction.ReplaceDocument(ctx, m.Collection, key, body)
		if uerr != nil {
			return oldDoc, newDoc, false, m.tolerate(engine.NewError(m.notFoundCode(), "%s", uerr.Error()))
		}
		return prior, doc, true, nil
	}
	return oldDoc, newDoc, false, engine.NewError(engine.Internal, "modify: unknown kind %d", m.Kind)
}

// tolerate folds err into WritesIgnored and returns nil when Opts says the
// error class should be swallowed, otherwise it passes err through.
func (m *Modify) tolerate(err error) error {
	if err == nil {
		return nil
	}
	code := engine.CodeOf(err)
	tolerated := m.Opts.IgnoreErrors ||
		(m.Opts.IgnoreDocumentNotFound && (code == engine.DocumentNotFound ||
			code == engine.DocumentNotFoundOrShardingAttributesChanged ||
			code == engine.DocumentKeyMissing))
	if !tolerated {
		return err
	}
	m.Eng.Stats.WritesIgnored++
	return nil
}

func (m *Modify) outputRow(oldDoc, newDoc engine.Document) *value.Block {
	nregs := 1
	if m.OutOldReg+1 > nregs {
		nregs = m.OutOldReg + 1
	}
	if m.OutNewReg+1 > nregs {
		nregs = m.OutNewReg + 1
	}
	out := value.NewBlock(1, nregs)
	if m.OutOldReg >= 0 && oldDoc.Body != nil {
		out.Set(0, m.OutOldReg, value.NewJSON(oldDoc.Body))
	}
	if m.OutNewReg >= 0 && newDoc.Body != nil {
		out.Set(0, m.OutNewReg, value.NewJSON(newDoc.Body))
	}
	return out
}

func (m *Modify) getOrSkipSome(ctx context.Context, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	if err := m.ensureAccumulated(ctx); err != nil {
		return nil, 0, err
	}
	var collected []*value.Block
	count := 0
	for count < atMost {
		if err := m.Eng.CheckKilled(); err != nil {
			return nil, 0, err
		}
		if m.posVal() >= m.frontRows() {
			if m.Done() && m.bufLen() == 0 {
				break
			}
			blk, err := m.Dependency().GetSome(ctx, 1, atMost-count)
			if err != nil {
				return nil, 0, err
			}
			if blk == nil {
				m.markDone()
				if m.bufLen() == 0 {
					break
				}
			} else {
				m.pushBuf(blk)
			}
			continue
		}
		front := m.front()
		idx := m.posVal()
		oldDoc, newDoc, ok, err := m.applyOne(ctx, front, idx)
		m.advancePos()
		if m.posVal() >= front.NumRows() {
			m.popFront()
		}
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		m.Eng.Stats.WritesExecuted++
		count++
		if !skipping {
			collected = append(collected, m.outputRow(oldDoc, newDoc))
		}
	}
	if count == 0 {
		return nil, 0, nil
	}
	if skipping {
		return nil, count, nil
	}
	out := value.Concatenate(collected)
	out.ClearRegisters(m.ClearRegs)
	return out, count, nil
}

func (m *Modify) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := m.getOrSkipSome(ctx, atLeast, atMost, false)
	return blk, err
}

func (m *Modify) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := m.getOrSkipSome(ctx, atLeast, atMost, true)
	return n, err
}

func (m *Modify) Skip(ctx context.Context, n int) (bool, error) { return m.Base.Skip(ctx, m, n) }
