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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DefaultBatchSize <= 0 {
		t.Fatalf("DefaultBatchSize = %d, want > 0", cfg.DefaultBatchSize)
	}
	if cfg.RemoteTimeout != time.Hour {
		t.Fatalf("RemoteTimeout = %v, want 1h (spec.md §4.7 default)", cfg.RemoteTimeout)
	}
}

func TestLoadConfigEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultBatchSize != DefaultConfig().DefaultBatchSize {
		t.Fatalf("LoadConfig(\"\") did not return defaults")
	}
}

func TestLoadConfigOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	contents := "defaultBatchSize: 250\nlocale: fr-FR\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultBatchSize != 250 {
		t.Fatalf("DefaultBatchSize = %d, want 250", cfg.DefaultBatchSize)
	}
	if cfg.Locale != "fr-FR" {
		t.Fatalf("Locale = %q, want fr-FR", cfg.Locale)
	}
	// Unspecified fields keep their default.
	if cfg.RemoteTimeout != time.Hour {
		t.Fatalf("RemoteTimeout = %v, want default 1h to survive a partial overlay", cfg.RemoteTimeout)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/cfg.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
