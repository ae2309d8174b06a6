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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
	"github.com/arangodb/aqlengine/wire"
)

// decodeGzipJSON reads (gzip-decompressing, per Remote.post) and decodes a
// request body sent by a Remote.
func decodeGzipJSON(r *http.Request, v any) error {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(r.Body)
		if err != nil {
			return err
		}
		defer gr.Close()
		reader = gr
	}
	return json.NewDecoder(reader).Decode(v)
}

// writeGzipJSON gzip-encodes v as the response body the way every /aql/*
// endpoint does, matching what Remote.post expects to decode.
func writeGzipJSON(w http.ResponseWriter, v any) {
	raw, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	gz.Write(raw)
	gz.Close()
}

func newRemote(t *testing.T, srv *httptest.Server) *Remote {
	eng := newTestEngine(nil, nil)
	r := NewRemote(eng, srv.URL, "shard-1")
	return r
}

func TestRemoteGetSomeUsesPutAndPathQueryID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/aql/getSome/shard-1" {
			t.Errorf("path = %s, want /aql/getSome/shard-1", r.URL.Path)
		}
		if got := r.Header.Get("Shard-Id"); got != "shard-1" {
			t.Errorf("Shard-Id header = %q, want shard-1", got)
		}
		var req wire.GetSomeRequest
		if err := decodeGzipJSON(r, &req); err != nil {
			t.Errorf("server: decode request: %v", err)
			return
		}
		if req.AtMost != 8 {
			t.Errorf("AtMost = %d, want 8", req.AtMost)
		}
		writeGzipJSON(w, wire.GetSomeResponse{
			NumRegs: 1,
			Rows:    []wire.Row{{"r0": "x"}, {"r0": "y"}},
			Stats:   &wire.StatsWire{ScannedFull: 2},
		})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	ctx := context.Background()
	blk, err := r.GetSome(ctx, 1, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer blk.Destroy()
	if blk.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2", blk.NumRows())
	}
	jv, _ := blk.Get(0, 0).ToJSON(nil)
	if jv != "x" {
		t.Fatalf("row 0 = %v, want x", jv)
	}
	if r.Eng.Stats.ScannedFull != 2 {
		t.Fatalf("ScannedFull = %d, want 2 folded from peer", r.Eng.Stats.ScannedFull)
	}
}

func TestRemoteGetSomeExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeGzipJSON(w, wire.GetSomeResponse{Exhausted: true})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	blk, err := r.GetSome(context.Background(), 1, 8)
	if err != nil {
		t.Fatal(err)
	}
	if blk != nil {
		t.Fatal("expected nil block (exhausted)")
	}
}

func TestRemoteGetSomeErrorFromPeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeGzipJSON(w, wire.GetSomeResponse{
			ErrorFields: wire.ToErrorFields(engine.NewError(engine.DocumentNotFound, "gone")),
		})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	_, err := r.GetSome(context.Background(), 1, 8)
	if engine.CodeOf(err) != engine.DocumentNotFound {
		t.Fatalf("err code = %d, want DocumentNotFound", engine.CodeOf(err))
	}
}

func TestRemoteInitializeCursorSendsItems(t *testing.T) {
	var gotPos int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var req wire.InitializeCursorRequest
		if err := decodeGzipJSON(r, &req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.Exhausted {
			t.Error("Exhausted should be false when an input block is given")
		}
		gotPos = req.Pos
		if req.Items == nil || len(req.Items.Rows) != 1 {
			t.Errorf("expected a 1-row items block, got %+v", req.Items)
		}
		writeGzipJSON(w, wire.InitializeCursorResponse{})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	in := value.NewBlock(1, 1)
	in.Set(0, 0, value.NewJSON("seed"))
	if err := r.InitializeCursor(context.Background(), in, 3); err != nil {
		t.Fatal(err)
	}
	if gotPos != 3 {
		t.Fatalf("server saw Pos = %d, want 3", gotPos)
	}
}

func TestRemoteInitializeCursorNilInputSendsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wire.InitializeCursorRequest
		if err := decodeGzipJSON(r, &req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if !req.Exhausted {
			t.Error("Exhausted should be true when no input block is given")
		}
		if req.Items != nil {
			t.Errorf("Items should be absent, got %+v", req.Items)
		}
		writeGzipJSON(w, wire.InitializeCursorResponse{})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	if err := r.InitializeCursor(context.Background(), nil, 0); err != nil {
		t.Fatal(err)
	}
}

func TestRemoteHasMoreAndRemainingAndCountUseGetAndPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET for %s", r.Method, r.URL.Path)
		}
		switch r.URL.Path {
		case "/aql/hasMore/shard-1":
			writeGzipJSON(w, wire.HasMoreResponse{HasMore: true})
		case "/aql/remaining/shard-1":
			writeGzipJSON(w, wire.RemainingResponse{Remaining: 41})
		case "/aql/count/shard-1":
			writeGzipJSON(w, wire.CountResponse{Count: 99})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	ctx := context.Background()

	has, err := r.HasMore(ctx)
	if err != nil || !has {
		t.Fatalf("HasMore = %v, %v, want true, nil", has, err)
	}
	rem, err := r.Remaining(ctx)
	if err != nil || rem != 41 {
		t.Fatalf("Remaining = %v, %v, want 41, nil", rem, err)
	}
	cnt, err := r.Count(ctx)
	if err != nil || cnt != 99 {
		t.Fatalf("Count = %v, %v, want 99, nil", cnt, err)
	}
}

func TestRemoteSkipSome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		writeGzipJSON(w, wire.SkipSomeResponse{Skipped: 5})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	n, err := r.SkipSome(context.Background(), 1, 10)
	if err != nil || n != 5 {
		t.Fatalf("SkipSome = %v, %v, want 5, nil", n, err)
	}
}

// TestRemoteShutdownIgnoresQueryNotFound: a peer that has already forgotten
// the query (e.g. it already shut down on its own) must not fail the
// coordinator's own shutdown (spec.md §4.7).
func TestRemoteShutdownIgnoresQueryNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		writeGzipJSON(w, wire.ShutdownResponse{
			Stats:       &wire.StatsWire{WritesExecuted: 3},
			ErrorFields: wire.ToErrorFields(engine.NewError(engine.QueryNotFound, "unknown query")),
		})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	if err := r.Shutdown(engine.NoError); err != nil {
		t.Fatalf("Shutdown should swallow QueryNotFound, got %v", err)
	}
	if r.Eng.Stats.WritesExecuted != 3 {
		t.Fatalf("WritesExecuted = %d, want 3 (stats still folded)", r.Eng.Stats.WritesExecuted)
	}
}

func TestRemotePost5xxMapsToConnectionLost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	_, err := r.GetSome(context.Background(), 1, 8)
	if engine.CodeOf(err) != engine.ClusterConnectionLost {
		t.Fatalf("err code = %d, want ClusterConnectionLost", engine.CodeOf(err))
	}
}

func TestRemotePostContextDeadlineMapsToTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		writeGzipJSON(w, wire.GetSomeResponse{Exhausted: true})
	}))
	defer srv.Close()

	r := newRemote(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := r.GetSome(ctx, 1, 8)
	if engine.CodeOf(err) != engine.ClusterTimeout {
		t.Fatalf("err code = %d, want ClusterTimeout", engine.CodeOf(err))
	}
}
