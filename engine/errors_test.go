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
	"errors"
	"testing"
)

func TestNewErrorFormatsMessage(t *testing.T) {
	err := NewError(DocumentNotFound, "document %q missing", "k1")
	if err.Code != DocumentNotFound {
		t.Fatalf("Code = %d, want %d", err.Code, DocumentNotFound)
	}
	if err.Error() != `document "k1" missing` {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Fatalf("CodeOf(plain error) = %d, want Internal", got)
	}
}

func TestCodeOfNil(t *testing.T) {
	if got := CodeOf(nil); got != NoError {
		t.Fatalf("CodeOf(nil) = %d, want NoError", got)
	}
}

func TestWrapPreservesCodeAndUnwrap(t *testing.T) {
	base := errors.New("storage exploded")
	wrapped := Wrap(ClusterConnectionLost, base)
	if wrapped.Code != ClusterConnectionLost {
		t.Fatalf("Code = %d, want ClusterConnectionLost", wrapped.Code)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("errors.Is(wrapped, base) = false, want true")
	}
	if got := CodeOf(wrapped); got != ClusterConnectionLost {
		t.Fatalf("CodeOf(wrapped) = %d, want ClusterConnectionLost", got)
	}
}

func TestWrapIdempotentOnAlreadyTypedError(t *testing.T) {
	orig := NewError(QueryKilled, "killed")
	wrapped := Wrap(Internal, orig)
	if wrapped.Code != QueryKilled {
		t.Fatalf("Wrap should not override an existing *Error's code; got %d", wrapped.Code)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Internal, nil) != nil {
		t.Fatal("Wrap(nil) should return nil")
	}
}
