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
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arangodb/aqlengine/engine"
)

func main() {
	fs := flag.NewFlagSet("dbserverd", flag.ExitOnError)
	listenAddr := fs.String("l", "127.0.0.1:9100", "endpoint to listen on for /aql/* cluster requests")
	configPath := fs.String("c", "", "path to a YAML config file (spec.md §9 Config)")
	if fs.Parse(os.Args[1:]) != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := engine.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("config: default batch size %d, remote timeout %v, locale %s", cfg.DefaultBatchSize, cfg.RemoteTimeout, cfg.Locale)

	srv := newServer(logger)
	httpSrv := &http.Server{Handler: srv.handler()}

	l, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		logger.Fatal(err)
	}
	go func() {
		logger.Printf("dbserverd listening on %v", l.Addr())
		if err := httpSrv.Serve(l); err != nil && err != http.ErrServerClosed {
			logger.Fatal(err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	httpSrv.Shutdown(ctx)
}
