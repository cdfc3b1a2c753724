// Package library turns raw scan results into a deduplicated, album-grouped
// snapshot and owns the scan/diff/apply cycle that keeps it current.
package library

import (
	"sort"
	"strings"

	"Ariami/model"
)

// durationToleranceMS is how far apart two durations may be while still
// counting as the same logical track.
const durationToleranceMS = 2000

// TieBreaker is one criterion for picking the canonical song among
// duplicates.
type TieBreaker string

const (
	TieBitrate      TieBreaker = "bitrate"
	TieCompleteness TieBreaker = "completeness"
	TieAdded        TieBreaker = "added"
)

// DefaultTieBreak is the assumed precedence; deployments can reorder it.
var DefaultTieBreak = []TieBreaker{TieBitrate, TieCompleteness, TieAdded}

// ParseTieBreak parses a comma-separated precedence list, falling back to
// the default for an empty or unrecognized spec.
func ParseTieBreak(spec string) []TieBreaker {
	var order []TieBreaker
	for _, part := range strings.Split(spec, ",") {
		switch TieBreaker(strings.TrimSpace(strings.ToLower(part))) {
		case TieBitrate:
			order = append(order, TieBitrate)
		case TieCompleteness:
			order = append(order, TieCompleteness)
		case TieAdded:
			order = append(order, TieAdded)
		}
	}
	if len(order) == 0 {
		return DefaultTieBreak
	}
	return order
}

// DuplicateDetector groups songs that represent the same logical track and
// flags all but one canonical copy. Nothing is ever removed from the index
// or from disk.
type DuplicateDetector struct {
	tieBreak []TieBreaker
}

// NewDuplicateDetector creates a detector with the given canonical-selection
// precedence.
func NewDuplicateDetector(tieBreak []TieBreaker) *DuplicateDetector {
	if len(tieBreak) == 0 {
		tieBreak = DefaultTieBreak
	}
	return &DuplicateDetector{tieBreak: tieBreak}
}

// normalizeKey lowercases and collapses whitespace, so tag formatting
// differences do not split a similarity group.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Detect marks duplicates in place. Songs sharing a normalized title+artist
// whose durations fall within the tolerance form one group; the canonical
// member is chosen by the configured tie-break order. The selection is
// deterministic: the same input always yields the same canonical song.
func (d *DuplicateDetector) Detect(songs []*model.Song) {
	for _, s := range songs {
		s.Duplicate = false
		s.CanonicalID = ""
	}

	groups := map[string][]*model.Song{}
	for _, s := range songs {
		key := normalizeKey(s.Title) + "\x00" + normalizeKey(s.Artist)
		groups[key] = append(groups[key], s)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		for _, cluster := range clusterByDuration(group) {
			if len(cluster) < 2 {
				continue
			}
			canonical := d.pickCanonical(cluster)
			for _, s := range cluster {
				if s.ID == canonical.ID {
					continue
				}
				s.Duplicate = true
				s.CanonicalID = canonical.ID
			}
		}
	}
}

// clusterByDuration splits a similarity group wherever the duration gap
// between neighbours exceeds the tolerance.
func clusterByDuration(group []*model.Song) [][]*model.Song {
	sorted := make([]*model.Song, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DurationMS != sorted[j].DurationMS {
			return sorted[i].DurationMS < sorted[j].DurationMS
		}
		return sorted[i].ID < sorted[j].ID
	})

	var clusters [][]*model.Song
	current := []*model.Song{sorted[0]}
	for _, s := range sorted[1:] {
		if s.DurationMS-current[len(current)-1].DurationMS <= durationToleranceMS {
			current = append(current, s)
			continue
		}
		clusters = append(clusters, current)
		current = []*model.Song{s}
	}
	return append(clusters, current)
}

func (d *DuplicateDetector) pickCanonical(cluster []*model.Song) *model.Song {
	best := cluster[0]
	for _, s := range cluster[1:] {
		if d.better(s, best) {
			best = s
		}
	}
	return best
}

// better reports whether a beats b under the configured precedence. Equal on
// every criterion falls through to the smaller ID so the choice stays stable.
func (d *DuplicateDetector) better(a, b *model.Song) bool {
	for _, tb := range d.tieBreak {
		switch tb {
		case TieBitrate:
			if a.BitrateKbps != b.BitrateKbps {
				return a.BitrateKbps > b.BitrateKbps
			}
		case TieCompleteness:
			if af, bf := a.MetadataFields(), b.MetadataFields(); af != bf {
				return af > bf
			}
		case TieAdded:
			if !a.AddedAt.Equal(b.AddedAt) {
				return a.AddedAt.Before(b.AddedAt)
			}
		}
	}
	return a.ID < b.ID
}
