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
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/blake2b"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
	"github.com/arangodb/aqlengine/wire"
)

// Remote tunnels every Operator call to a single node of a query plan
// running on another DB-server over HTTP (spec.md §4.7): each call becomes
// one synchronous request to the peer's /aql/<op>/<queryId> endpoint --
// PUT for the mutating calls, GET for the read-only ones, per spec.md §6 --
// gzip-compressed and digest-checked, after which the peer's incremental
// statistics are folded into the local engine.
type Remote struct {
	Eng *engine.Engine

	BaseURL string
	NodeID  string
	Client  *http.Client

	lastStats *engine.Stats
}

// NewRemote constructs a Remote pointed at baseURL (a DB-server's aqlengine
// HTTP listener) for the plan node identified by nodeID. nodeID is the
// query id this peer knows this leg's cursor by, carried in the URL path
// of every call and echoed in the Shard-Id header.
func NewRemote(eng *engine.Engine, baseURL, nodeID string) *Remote {
	return &Remote{
		Eng:       eng,
		BaseURL:   baseURL,
		NodeID:    nodeID,
		Client:    &http.Client{Timeout: eng.Config.RemoteTimeout},
		lastStats: eng.Stats.Snapshot(),
	}
}

// foldWire merges the delta between a peer's reported stats snapshot and
// the previous one into the local engine, for calls whose response
// carried a snapshot.
func (r *Remote) foldWire(sw *wire.StatsWire) {
	peer := wire.FromStatsWire(sw)
	if peer == nil {
		return
	}
	delta := peer.Delta(r.lastStats)
	r.Eng.Stats.Merge(delta)
	r.lastStats = peer
}

// path builds /aql/<op>/<queryId>: spec.md §6 carries the query id in the
// URL path, not the JSON body.
func (r *Remote) path(op string) string {
	return "/aql/" + op + "/" + r.NodeID
}

// post issues method against path. When body is non-nil it is gzip-
// compressed and digest-checked the way GetSome/SkipSome/InitializeCursor/
// Shutdown carry a JSON payload (spec.md §6's PUT endpoints); the read-only
// GET endpoints (hasMore/remaining/count) pass a nil body. The response is
// always a gzip-compressed JSON envelope. A network-level failure maps to
// CLUSTER_TIMEOUT (when ctx has expired) or CLUSTER_CONNECTION_LOST, and a
// 5xx status maps to CLUSTER_CONNECTION_LOST; any other response body is
// decoded into out so the caller can rethrow its error fields.
func (r *Remote) post(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	var digest string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return engine.Wrap(engine.Internal, err)
		}
		sum := blake2b.Sum256(raw)
		digest = hex.EncodeToString(sum[:])

		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		if _, err := zw.Write(raw); err != nil {
			return engine.Wrap(engine.Internal, err)
		}
		if err := zw.Close(); err != nil {
			return engine.Wrap(engine.Internal, err)
		}
		reqBody = &gz
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reqBody)
	if err != nil {
		return engine.Wrap(engine.Internal, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set("X-Block-Digest", digest)
	}
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Shard-Id", r.NodeID)

	resp, err := r.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return engine.NewError(engine.ClusterTimeout, "remote %s: %v", path, err)
		}
		return engine.NewError(engine.ClusterConnectionLost, "remote %s: %v", path, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return engine.Wrap(engine.ClusterAQLCommunication, err)
		}
		defer gr.Close()
		reader = gr
	}
	if resp.StatusCode >= 500 {
		return engine.NewError(engine.ClusterConnectionLost, "remote %s: peer returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return engine.Wrap(engine.ClusterAQLCommunication, err)
	}
	return nil
}

func (r *Remote) Initialize(ctx context.Context) error { return nil }

func (r *Remote) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	req := wire.InitializeCursorRequest{Exhausted: input == nil}
	if input != nil {
		bw, err := wire.ToBlockWire(input)
		if err != nil {
			return err
		}
		req.Pos = pos
		req.Items = bw
	}
	var resp wire.InitializeCursorResponse
	if err := r.post(ctx, http.MethodPut, r.path("initializeCursor"), req, &resp); err != nil {
		return err
	}
	if resp.Stats != nil {
		r.foldWire(resp.Stats)
	}
	return wire.FromErrorFields(resp.ErrorFields)
}

func (r *Remote) Shutdown(code engine.Code) error {
	ctx := context.Background()
	var resp wire.ShutdownResponse
	err := r.post(ctx, http.MethodPut, r.path("shutdown"), wire.ShutdownRequest{Code: int(code)}, &resp)
	if resp.Stats != nil {
		r.foldWire(resp.Stats)
	}
	if err != nil {
		return err
	}
	if werr := wire.FromErrorFields(resp.ErrorFields); werr != nil {
		if engine.CodeOf(werr) == engine.QueryNotFound {
			return nil
		}
		return werr
	}
	return nil
}

func (r *Remote) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	var resp wire.GetSomeResponse
	if err := r.post(ctx, http.MethodPut, r.path("getSome"), wire.GetSomeRequest{AtLeast: atLeast, AtMost: atMost}, &resp); err != nil {
		return nil, err
	}
	if resp.Stats != nil {
		r.foldWire(resp.Stats)
	}
	if err := wire.FromErrorFields(resp.ErrorFields); err != nil {
		return nil, err
	}
	if resp.Exhausted {
		return nil, nil
	}
	return wire.FromBlockWire(&wire.BlockWire{NumRegs: resp.NumRegs, Rows: resp.Rows}), nil
}

func (r *Remote) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	var resp wire.SkipSomeResponse
	if err := r.post(ctx, http.MethodPut, r.path("skipSome"), wire.SkipSomeRequest{AtLeast: atLeast, AtMost: atMost}, &resp); err != nil {
		return 0, err
	}
	if resp.Stats != nil {
		r.foldWire(resp.Stats)
	}
	if err := wire.FromErrorFields(resp.ErrorFields); err != nil {
		return 0, err
	}
	return resp.Skipped, nil
}

func (r *Remote) Skip(ctx context.Context, n int) (bool, error) {
	for n > 0 {
		skipped, err := r.SkipSome(ctx, 1, n)
		if err != nil {
			return false, err
		}
		if skipped == 0 {
			more, err := r.HasMore(ctx)
			if err != nil {
				return false, err
			}
			return !more, nil
		}
		n -= skipped
	}
	return false, nil
}

func (r *Remote) HasMore(ctx context.Context) (bool, error) {
	var resp wire.HasMoreResponse
	if err := r.post(ctx, http.MethodGet, r.path("hasMore"), nil, &resp); err != nil {
		return false, err
	}
	if err := wire.FromErrorFields(resp.ErrorFields); err != nil {
		return false, err
	}
	return resp.HasMore, nil
}

func (r *Remote) Remaining(ctx context.Context) (int64, error) {
	var resp wire.RemainingResponse
	if err := r.post(ctx, http.MethodGet, r.path("remaining"), nil, &resp); err != nil {
		return -1, err
	}
	if err := wire.FromErrorFields(resp.ErrorFields); err != nil {
		return -1, err
	}
	return resp.Remaining, nil
}

func (r *Remote) Count(ctx context.Context) (int64, error) {
	var resp wire.CountResponse
	if err := r.post(ctx, http.MethodGet, r.path("count"), nil, &resp); err != nil {
		return -1, err
	}
	if err := wire.FromErrorFields(resp.ErrorFields); err != nil {
		return -1, err
	}
	return resp.Count, nil
}
