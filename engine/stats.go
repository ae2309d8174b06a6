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

// Stats are the upward-facing counters from spec.md §6. FullCount uses -1
// to mean "not tracked", matching the convention used for Remaining/Count
// throughout the pull protocol.
type Stats struct {
	WritesExecuted int64
	WritesIgnored  int64
	ScannedFull    int64
	ScannedIndex   int64
	Filtered       int64
	FullCount      int64
}

// NewStats returns a Stats with FullCount initialized to the "not tracked"
// sentinel.
func NewStats() *Stats {
	return &Stats{FullCount: -1}
}

// EnableFullCount moves FullCount from "not tracked" to zero, the
// initialization Limit performs the first time full_count accounting is
// actually needed (spec.md §4.5).
func (s *Stats) EnableFullCount() {
	if s.FullCount < 0 {
		s.FullCount = 0
	}
}

// Merge folds a peer's incremental delta into these stats, the
// accumulation every Remote call performs per spec.md §4.7/§6. It mirrors
// the teacher's own ExecParams.Stats.observe accumulation in plan/exec.go.
func (s *Stats) Merge(delta *Stats) {
	if delta == nil {
		return
	}
	s.WritesExecuted += delta.WritesExecuted
	s.WritesIgnored += delta.WritesIgnored
	s.ScannedFull += delta.ScannedFull
	s.ScannedIndex += delta.ScannedIndex
	s.Filtered += delta.Filtered
	if delta.FullCount >= 0 {
		s.EnableFullCount()
		s.FullCount += delta.FullCount
	}
}

// Delta returns a Stats holding only the increase since prev was captured,
// used by Remote to compute what to fold into the local engine on each call
// (spec.md §4.7: "the peer's incremental execution statistics are folded
// into the local engine's stats on every call").
func (s *Stats) Delta(prev *Stats) *Stats {
	d := &Stats{
		WritesExecuted: s.WritesExecuted - prev.WritesExecuted,
		WritesIgnored:  s.WritesIgnored - prev.WritesIgnored,
		ScannedFull:    s.ScannedFull - prev.ScannedFull,
		ScannedIndex:   s.ScannedIndex - prev.ScannedIndex,
		Filtered:       s.Filtered - prev.Filtered,
		FullCount:      -1,
	}
	if s.FullCount >= 0 && prev.FullCount >= 0 {
		d.FullCount = s.FullCount - prev.FullCount
	}
	return d
}

// Snapshot returns a copy, used so Remote can diff against a point in time.
func (s *Stats) Snapshot() *Stats {
	cp := *s
	return &cp
}
