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

// Command dbserverd hosts the /aql/<op>/<queryId> endpoints spec.md §6
// describes for the cluster transport: it answers block.Remote's calls
// against whatever operator trees a coordinator has registered with it.
// Distributing those trees in the first place means compiling and placing
// a query plan, which is out of scope (spec.md §1) -- Register below is
// this binary's only plan-intake surface, and is exercised directly by
// this package's tests the way a real coordinator process would drive it
// over some separate, unspecified control channel.
package main

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/blake2b"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
	"github.com/arangodb/aqlengine/wire"
)

// server answers the cluster HTTP transport on behalf of a registry of
// live operator trees, following the teacher's server+ServeMux+handle(...)
// shape (cmd/snellerd/server.go).
type server struct {
	logger   *log.Logger
	registry *registry
}

func newServer(logger *log.Logger) *server {
	return &server{logger: logger, registry: newRegistry()}
}

// handler wires every /aql/<op>/<queryId> path spec.md §6 names, PUT for
// the mutating calls and GET for the read-only ones.
func (s *server) handler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/aql/initializeCursor/", s.handlePut(s.handleInitializeCursor))
	mux.HandleFunc("/aql/shutdown/", s.handlePut(s.handleShutdown))
	mux.HandleFunc("/aql/getSome/", s.handlePut(s.handleGetSome))
	mux.HandleFunc("/aql/skipSome/", s.handlePut(s.handleSkipSome))
	mux.HandleFunc("/aql/hasMore/", s.handleGet(s.handleHasMore))
	mux.HandleFunc("/aql/remaining/", s.handleGet(s.handleRemaining))
	mux.HandleFunc("/aql/count/", s.handleGet(s.handleCount))
	return mux
}

// queryIDFromPath pulls the trailing path segment off an /aql/<op>/<id>
// request -- manual parsing because this module targets go 1.21, ahead of
// the method+wildcard ServeMux patterns added in Go 1.22.
func queryIDFromPath(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// handlePut wraps one of the four mutating /aql/<op>/<queryId> handlers
// with the method check, gzip framing and digest check they all share,
// mirroring the teacher's own handle(...) wrapper (cmd/snellerd/server.go)
// generalized to block.Remote's transport (spec.md §4.7, §6).
func (s *server) handlePut(h func(w http.ResponseWriter, r *http.Request, queryID string, body []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var reader io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			gr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer gr.Close()
			reader = gr
		}
		raw, err := io.ReadAll(reader)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if want := r.Header.Get("X-Block-Digest"); want != "" {
			sum := blake2b.Sum256(raw)
			if hex.EncodeToString(sum[:]) != want {
				http.Error(w, "digest mismatch", http.StatusBadRequest)
				return
			}
		}
		queryID := queryIDFromPath(r.URL.Path)
		s.logger.Printf("%s %s shard=%s", r.Method, r.URL.Path, r.Header.Get("Shard-Id"))
		h(w, r, queryID, raw)
	}
}

// handleGet wraps one of the three read-only /aql/<op>/<queryId> handlers:
// no request body to frame or digest-check, just the method check and the
// queryId extracted from the path.
func (s *server) handleGet(h func(w http.ResponseWriter, r *http.Request, queryID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		queryID := queryIDFromPath(r.URL.Path)
		s.logger.Printf("%s %s shard=%s", r.Method, r.URL.Path, r.Header.Get("Shard-Id"))
		h(w, r, queryID)
	}
}

// writeResponse gzip-encodes v as JSON, the response shape block.Remote.post
// expects to decode.
func writeResponse(w http.ResponseWriter, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	gz.Write(raw)
	gz.Close()
}

func notFound(queryID string) error {
	return engine.NewError(engine.QueryNotFound, "no such query %s", queryID)
}

func (s *server) handleInitializeCursor(w http.ResponseWriter, r *http.Request, queryID string, body []byte) {
	var req wire.InitializeCursorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	node, ok := s.registry.Lookup(queryID)
	if !ok {
		writeResponse(w, wire.InitializeCursorResponse{ErrorFields: wire.ToErrorFields(notFound(queryID))})
		return
	}
	var input *value.Block
	if !req.Exhausted {
		input = wire.FromBlockWire(req.Items)
	}
	err := node.Op.InitializeCursor(r.Context(), input, req.Pos)
	writeResponse(w, wire.InitializeCursorResponse{ErrorFields: wire.ToErrorFields(err)})
}

func (s *server) handleShutdown(w http.ResponseWriter, r *http.Request, queryID string, body []byte) {
	var req wire.ShutdownRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	node, ok := s.registry.Lookup(queryID)
	if !ok {
		writeResponse(w, wire.ShutdownResponse{ErrorFields: wire.ToErrorFields(notFound(queryID))})
		return
	}
	err := node.Op.Shutdown(engine.Code(req.Code))
	stats := wire.ToStatsWire(node.Eng.Stats)
	s.registry.Forget(queryID)
	writeResponse(w, wire.ShutdownResponse{ErrorFields: wire.ToErrorFields(err), Stats: stats})
}

func (s *server) handleGetSome(w http.ResponseWriter, r *http.Request, queryID string, body []byte) {
	var req wire.GetSomeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	node, ok := s.registry.Lookup(queryID)
	if !ok {
		writeResponse(w, wire.GetSomeResponse{ErrorFields: wire.ToErrorFields(notFound(queryID))})
		return
	}
	blk, err := node.Op.GetSome(r.Context(), req.AtLeast, req.AtMost)
	stats := wire.ToStatsWire(node.Eng.Stats)
	if err != nil {
		writeResponse(w, wire.GetSomeResponse{ErrorFields: wire.ToErrorFields(err), Stats: stats})
		return
	}
	if blk == nil {
		writeResponse(w, wire.GetSomeResponse{Exhausted: true, Stats: stats})
		return
	}
	bw, err := wire.ToBlockWire(blk)
	blk.Destroy()
	if err != nil {
		writeResponse(w, wire.GetSomeResponse{ErrorFields: wire.ToErrorFields(err), Stats: stats})
		return
	}
	writeResponse(w, wire.GetSomeResponse{NumRegs: bw.NumRegs, Rows: bw.Rows, Stats: stats})
}

func (s *server) handleSkipSome(w http.ResponseWriter, r *http.Request, queryID string, body []byte) {
	var req wire.SkipSomeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	node, ok := s.registry.Lookup(queryID)
	if !ok {
		writeResponse(w, wire.SkipSomeResponse{ErrorFields: wire.ToErrorFields(notFound(queryID))})
		return
	}
	n, err := node.Op.SkipSome(r.Context(), req.AtLeast, req.AtMost)
	writeResponse(w, wire.SkipSomeResponse{Skipped: n, ErrorFields: wire.ToErrorFields(err), Stats: wire.ToStatsWire(node.Eng.Stats)})
}

func (s *server) handleHasMore(w http.ResponseWriter, r *http.Request, queryID string) {
	node, ok := s.registry.Lookup(queryID)
	if !ok {
		writeResponse(w, wire.HasMoreResponse{ErrorFields: wire.ToErrorFields(notFound(queryID))})
		return
	}
	has, err := node.Op.HasMore(r.Context())
	writeResponse(w, wire.HasMoreResponse{HasMore: has, ErrorFields: wire.ToErrorFields(err)})
}

func (s *server) handleRemaining(w http.ResponseWriter, r *http.Request, queryID string) {
	node, ok := s.registry.Lookup(queryID)
	if !ok {
		writeResponse(w, wire.RemainingResponse{Remaining: -1, ErrorFields: wire.ToErrorFields(notFound(queryID))})
		return
	}
	rem, err := node.Op.Remaining(r.Context())
	writeResponse(w, wire.RemainingResponse{Remaining: rem, ErrorFields: wire.ToErrorFields(err)})
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request, queryID string) {
	node, ok := s.registry.Lookup(queryID)
	if !ok {
		writeResponse(w, wire.CountResponse{Count: -1, ErrorFields: wire.ToErrorFields(notFound(queryID))})
		return
	}
	cnt, err := node.Op.Count(r.Context())
	writeResponse(w, wire.CountResponse{Count: cnt, ErrorFields: wire.ToErrorFields(err)})
}
