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

// Package engine ties together the collaborators the pull-based operator
// tree needs (storage/transaction, cluster info, expression evaluation),
// plus the statistics, configuration, and error types it exposes upward
// (spec.md §6, §7).
package engine

import "fmt"

// Code is one of the stable integer error codes from spec.md §6. Unlike a
// plain Go sentinel error, Code survives a round trip through the cluster
// HTTP transport (§6): the wire envelope carries {errorNum, errorMessage}
// and the coordinator reconstructs an *Error with the same Code.
type Code int

const (
	NoError Code = 0
	Internal Code = 4
	OutOfMemory Code = 6
	QueryKilled Code = 1500
	QueryParse Code = 1501
	QueryModifyInSubquery Code = 1569
	QueryCompileTimeOptions Code = 1570
	QueryArrayExpected Code = 1571
	DocumentTypeInvalid Code = 1600
	DocumentKeyMissing Code = 1601
	DocumentHandleBad Code = 1602
	DocumentNotFound Code = 1603
	UniqueConstraintViolated Code = 1604
	ArangoNoIndex Code = 1605
	ClusterTimeout Code = 1700
	ClusterConnectionLost Code = 1701
	ClusterAQLCommunication Code = 1702
	ClusterMustNotSpecifyKey Code = 1703
	DocumentNotFoundOrShardingAttributesChanged Code = 1704
	QueryNotFound Code = 1705
)

// Error is the structured error the core surfaces by number per spec.md §6.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("error %d", e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.wrapped }

// NewError constructs an *Error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to an existing error, preserving it as the Unwrap
// target so errors.Is/errors.As keep working across the boundary.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: code, Message: err.Error(), wrapped: err}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error,
// otherwise returns Internal.
func CodeOf(err error) Code {
	if err == nil {
		return NoError
	}
	var e *Error
	if as(err, &e) {
		return e.Code
	}
	return Internal
}

// as is a tiny local errors.As to avoid importing errors just for this one
// call site used by CodeOf; kept unexported since it only needs to unwrap
// a single level of *Error wrapping that Wrap ever produces.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
