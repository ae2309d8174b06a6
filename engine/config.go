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
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Config holds the ambient tunables that are not themselves part of a
// query plan: batch sizing, the cluster HTTP timeout, and the sort spill
// threshold supplementing spec.md §4.5.
type Config struct {
	// DefaultBatchSize is the batch size sources request from the
	// storage layer (spec.md §4.3, "hint >= default_batch_size").
	DefaultBatchSize int `json:"defaultBatchSize"`

	// RemoteTimeout is the default HTTP round-trip timeout for Remote
	// calls (spec.md §4.7: "a default timeout (one hour)").
	RemoteTimeout time.Duration `json:"remoteTimeout"`

	// SortSpillRows, if non-zero, bounds how many rows Sort will hold in
	// memory before spilling a run to disk (SPEC_FULL.md §4.5). Zero
	// disables spilling, matching spec.md's fully in-memory Sort.
	SortSpillRows int `json:"sortSpillRows"`

	// Locale is a BCP 47 language tag. dbserverd logs it at startup;
	// nothing passes it to collate.SetLocale, so string collation keeps
	// collate's built-in American English default.
	Locale string `json:"locale"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		DefaultBatchSize: 1000,
		RemoteTimeout:    time.Hour,
		SortSpillRows:    0,
		Locale:           "en-US",
	}
}

// LoadConfig reads a YAML configuration file and overlays it onto
// DefaultConfig, the way the teacher's go.mod-declared sigs.k8s.io/yaml
// dependency is meant to be used for ambient configuration surfaces.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("engine: parsing config %q: %w", path, err)
	}
	return cfg, nil
}
