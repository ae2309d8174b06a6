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

// Command coordinatord is the coordinator-side counterpart to dbserverd: it
// fans a query's per-shard legs out to a Remote per peer and gathers the
// results back into one stream (spec.md §4.7). Building the per-shard plan
// nodes that dbserverd is expected to have registered ahead of time is
// itself out of scope (spec.md §1, no plan compiler); this binary only
// drives the already-registered nodeID against every peer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/arangodb/aqlengine/block"
	"github.com/arangodb/aqlengine/engine"
)

func main() {
	fs := flag.NewFlagSet("coordinatord", flag.ExitOnError)
	peersFlag := fs.String("peers", "", "comma-separated dbserverd base URLs, one per shard")
	nodeID := fs.String("node", "root", "plan nodeID already registered on every peer")
	configPath := fs.String("c", "", "path to a YAML config file (spec.md §9 Config)")
	batchSize := fs.Int("batch", 0, "rows requested per GetSome call (0 uses the config default)")
	if fs.Parse(os.Args[1:]) != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := engine.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	if *batchSize <= 0 {
		*batchSize = cfg.DefaultBatchSize
	}

	var peers []string
	for _, p := range strings.Split(*peersFlag, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			peers = append(peers, p)
		}
	}
	if len(peers) == 0 {
		logger.Fatal("coordinatord: -peers must name at least one dbserverd endpoint")
	}

	eng := engine.New(cfg, nil, nil, nil)
	legs := make([]block.Operator, len(peers))
	for i, p := range peers {
		legs[i] = block.NewRemote(eng, p, *nodeID)
	}
	var top block.Operator = block.NewGather(eng, legs, nil)

	enc := json.NewEncoder(os.Stdout)
	ctx := context.Background()
	if err := drive(ctx, top, *batchSize, func(row map[string]any) error {
		return enc.Encode(row)
	}); err != nil {
		logger.Fatal(err)
	}
	logger.Printf("query %s done: scannedFull=%d scannedIndex=%d writesExecuted=%d",
		eng.QueryID, eng.Stats.ScannedFull, eng.Stats.ScannedIndex, eng.Stats.WritesExecuted)
}
