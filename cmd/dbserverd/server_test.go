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

package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arangodb/aqlengine/block"
	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// buildNodeTree builds a tiny real operator tree -- Singleton ->
// EnumerateList -> Return -- the shape a planner would hand a DB-server for
// one shard's leg of a query (spec.md §4.3).
func buildNodeTree(eng *engine.Engine) block.Operator {
	src := block.NewSingleton(eng)
	el := block.NewEnumerateList(eng, src, 0, 0)
	return block.NewReturn(eng, el, 0)
}

func TestDBServerdEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newServer(log.New(io.Discard, "", 0))
	httpSrv := httptest.NewServer(srv.handler())
	defer httpSrv.Close()

	coordEng := engine.New(nil, nil, nil, nil)
	nodeEng := engine.New(nil, nil, nil, nil)
	nodeEng.Stats.ScannedFull = 3 // stands in for work the node side would have tallied

	tree := buildNodeTree(nodeEng)
	if err := tree.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	srv.registry.Register("n0", tree, nodeEng)

	remote := block.NewRemote(coordEng, httpSrv.URL, "n0")

	input := value.NewBlock(1, 1)
	input.Set(0, 0, value.NewJSON([]any{float64(1), float64(2), float64(3)}))
	if err := remote.InitializeCursor(ctx, input, 0); err != nil {
		t.Fatal(err)
	}

	var got []any
	for {
		blk, err := remote.GetSome(ctx, 1, 8)
		if err != nil {
			t.Fatal(err)
		}
		if blk == nil {
			break
		}
		for i := 0; i < blk.NumRows(); i++ {
			jv, err := blk.Get(i, 0).ToJSON(nil)
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, jv)
		}
		blk.Destroy()
	}
	want := []any{float64(1), float64(2), float64(3)}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("row %d = %v, want %v", i, got[i], w)
		}
	}

	has, err := remote.HasMore(ctx)
	if err != nil || has {
		t.Fatalf("HasMore after drain = %v, %v, want false, nil", has, err)
	}

	if err := remote.Shutdown(engine.NoError); err != nil {
		t.Fatal(err)
	}
	if coordEng.Stats.ScannedFull != 3 {
		t.Fatalf("coordinator Stats.ScannedFull = %d, want 3 folded from the peer", coordEng.Stats.ScannedFull)
	}

	// The node was forgotten on Shutdown: a further call reports QueryNotFound.
	if _, err := remote.GetSome(ctx, 1, 8); engine.CodeOf(err) != engine.QueryNotFound {
		t.Fatalf("GetSome after Shutdown: code = %d, want QueryNotFound", engine.CodeOf(err))
	}
}

func TestDBServerdEnforcesPerEndpointVerb(t *testing.T) {
	srv := newServer(log.New(io.Discard, "", 0))
	httpSrv := httptest.NewServer(srv.handler())
	defer httpSrv.Close()

	// hasMore is GET-only: a PUT must be rejected.
	req, err := http.NewRequest(http.MethodPut, httpSrv.URL+"/aql/hasMore/n0", bytes.NewReader(nil))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("PUT /aql/hasMore/n0 status = %d, want 405", resp.StatusCode)
	}

	// getSome is PUT-only: a GET must be rejected.
	resp, err = http.Get(httpSrv.URL + "/aql/getSome/n0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /aql/getSome/n0 status = %d, want 405", resp.StatusCode)
	}
}

func TestDBServerdRejectsDigestMismatch(t *testing.T) {
	srv := newServer(log.New(io.Discard, "", 0))
	httpSrv := httptest.NewServer(srv.handler())
	defer httpSrv.Close()

	req, err := http.NewRequest(http.MethodPut, httpSrv.URL+"/aql/getSome/n0", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Block-Digest", "not-a-real-digest")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mismatched digest status = %d, want 400", resp.StatusCode)
	}
}
