// internal/report/orchestrator.go
package report

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/solatis/cratedigger/internal/rules"
	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Per-rule candidate construction.
 *
 * For one compiled rule over the canonicalized record set:
 *   1. Filter: keep records the rule matches, in input order
 *   2. Sort: releaseDate desc, bpm desc, id asc (stable)
 *   3. Dedupe: one entry per canonical id, first (highest-ranked) wins
 *   4. Aggregate: count, total duration, mean bpm, key histogram
 *
 * Rules share nothing but the read-only record slice, so candidates for
 * distinct rules may be built concurrently.
 */

// epoch stands in for a missing releaseDate when sorting.
var epoch = time.Unix(0, 0).UTC()

// BuildCandidate evaluates rule against records (already canonicalized) and
// assembles its candidate.
func BuildCandidate(rule *rules.CompiledRule, records []types.Record) types.Candidate {
	matches := dedupe(sortMatches(rules.Filter(rule, records)))

	ids := make([]string, len(matches))
	for i, rec := range matches {
		ids[i] = rec.ID
	}
	return types.Candidate{
		RuleID:    rule.RuleID,
		Label:     rule.Label,
		Priority:  rule.Priority,
		RecordIDs: ids,
		Stats:     aggregate(matches),
	}
}

// sortMatches orders matches in place and returns them.
func sortMatches(matches []*types.Record) []*types.Record {
	slices.SortStableFunc(matches, compareMatches)
	return matches
}

// compareMatches is the candidate ranking: newest first, then fastest, then id.
func compareMatches(a, b *types.Record) int {
	if c := releaseOf(b).Compare(releaseOf(a)); c != 0 {
		return c
	}
	if c := cmp.Compare(bpmOf(b), bpmOf(a)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func releaseOf(rec *types.Record) time.Time {
	if rec.ReleaseDate == nil {
		return epoch
	}
	return *rec.ReleaseDate
}

func bpmOf(rec *types.Record) float64 {
	if rec.BPM == nil {
		return math.Inf(-1)
	}
	return *rec.BPM
}

// dedupe drops later records whose canonical id was already seen.
func dedupe(matches []*types.Record) []*types.Record {
	seen := make(map[string]struct{}, len(matches))
	out := matches[:0]
	for _, rec := range matches {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// aggregate computes candidate statistics. MeanBPM stays nil when no match
// has a bpm; records without a key count under the empty-string bucket.
func aggregate(matches []*types.Record) types.CandidateStats {
	stats := types.CandidateStats{
		Count:        len(matches),
		KeyHistogram: make(map[string]int),
	}

	var (
		duration float64
		bpmSum   float64
		bpmCount int
	)
	for _, rec := range matches {
		if rec.DurationSeconds != nil {
			duration += *rec.DurationSeconds
		}
		if rec.BPM != nil {
			bpmSum += *rec.BPM
			bpmCount++
		}
		key := ""
		if rec.Key != nil {
			key = *rec.Key
		}
		stats.KeyHistogram[key]++
	}

	stats.TotalDurationSeconds = int64(math.Round(duration))
	if bpmCount > 0 {
		mean := bpmSum / float64(bpmCount)
		stats.MeanBPM = &mean
	}
	return stats
}
