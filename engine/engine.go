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
	"log"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
)

// Engine is the per-query collaborator bag described by spec.md §9:
// "Global singletons ... -> injected collaborators passed at engine
// construction, so tests can swap in fakes." One Engine is constructed per
// query and owned exclusively by that query (spec.md §5).
type Engine struct {
	Config *Config
	Stats  *Stats
	Logger *log.Logger

	Transaction Transaction
	Cluster     ClusterInfo
	Eval        Evaluator

	QueryID uuid.UUID

	killed int32
}

// New constructs an Engine with a fresh query id and the given
// collaborators. cfg may be nil, in which case DefaultConfig is used.
func New(cfg *Config, trx Transaction, cluster ClusterInfo, eval Evaluator) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		Config:      cfg,
		Stats:       NewStats(),
		Logger:      log.New(os.Stderr, "", log.LstdFlags),
		Transaction: trx,
		Cluster:     cluster,
		Eval:        eval,
		QueryID:     uuid.New(),
	}
}

// Kill marks the query as cancelled. Safe for concurrent use.
func (e *Engine) Kill() { atomic.StoreInt32(&e.killed, 1) }

// Killed reports whether Kill has been called.
func (e *Engine) Killed() bool { return atomic.LoadInt32(&e.killed) != 0 }

// CheckKilled is the per-row/per-storage-call poll point required by
// spec.md §5 ("After every storage call and between every input row a
// 'query killed' flag is polled; when set, the operator raises
// QUERY_KILLED immediately.").
func (e *Engine) CheckKilled() error {
	if e.Killed() {
		return NewError(QueryKilled, "query %s was killed", e.QueryID)
	}
	return nil
}
