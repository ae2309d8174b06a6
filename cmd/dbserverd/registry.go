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
	"sync"

	"github.com/arangodb/aqlengine/block"
	"github.com/arangodb/aqlengine/engine"
)

// registeredNode pairs a live operator with the Engine driving it, so a
// /aql/shutdown call can report that Engine's final Stats.
type registeredNode struct {
	Op  block.Operator
	Eng *engine.Engine
}

// registry holds the operator trees this process is currently serving on
// behalf of remote coordinators, keyed by the queryId spec.md §6 carries in
// every /aql/<op>/<queryId> URL path. Distributing a plan across the
// cluster and populating the registry is the coordinator's job; dbserverd
// only ever answers calls against a queryId it already knows about,
// reporting QueryNotFound otherwise.
type registry struct {
	mu    sync.Mutex
	nodes map[string]*registeredNode
}

func newRegistry() *registry {
	return &registry{nodes: make(map[string]*registeredNode)}
}

// Register makes op reachable at queryID for subsequent /aql/* calls.
func (r *registry) Register(queryID string, op block.Operator, eng *engine.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[queryID] = &registeredNode{Op: op, Eng: eng}
}

// Lookup returns the node registered at queryID, if any.
func (r *registry) Lookup(queryID string) (*registeredNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[queryID]
	return n, ok
}

// Forget removes a node, called once its Shutdown has been answered.
func (r *registry) Forget(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, queryID)
}
