package aggregator

import (
	"strings"
	"time"

	"github.com/railboard/railboard_core/internal/models"
)

// conflictThreshold is the estimated-time disagreement beyond which two
// sources are considered to genuinely conflict
const conflictThreshold = 5 * time.Minute

// identityKey recognizes the same physical service across sources whose
// native identifiers differ: operator code + scheduled departure minute
// (UTC) + first destination code.
func identityKey(dep models.Departure) string {
	dest := ""
	if len(dep.Destination) > 0 {
		dest = dep.Destination[0].LocationCode
	}
	return strings.ToUpper(dep.OperatorCode) + "|" +
		dep.ScheduledTime.UTC().Format("200601021504") + "|" +
		strings.ToUpper(dest)
}

// mergeBoards folds secondary boards into the primary one. The primary
// list stays authoritative: secondaries enhance matching departures but
// never add rows. Returns the merged board, the number of genuine field
// conflicts, and the names of sources that contributed at least one
// merge. Folding happens in fixed priority order, so the outcome does
// not depend on adapter completion order; per-departure merging is
// commutative on non-conflicting fields.
func mergeBoards(primary *models.StationBoard, secondaries []fetchResult) (*models.StationBoard, int, []string) {
	merged := *primary
	merged.Departures = make([]models.Departure, len(primary.Departures))
	copy(merged.Departures, primary.Departures)

	index := make(map[string]int, len(merged.Departures))
	for i, dep := range merged.Departures {
		index[identityKey(dep)] = i
	}

	conflicts := 0
	contributed := []string{}

	for _, sec := range secondaries {
		touched := false
		for _, other := range sec.board.Departures {
			pos, ok := index[identityKey(other)]
			if !ok {
				continue
			}
			out, c, changed := mergeDeparture(merged.Departures[pos], other)
			merged.Departures[pos] = out
			conflicts += c
			if changed {
				touched = true
			}
		}
		if touched {
			contributed = append(contributed, sec.name)
		}
		if sec.board.SourceTime.After(merged.SourceTime) {
			merged.SourceTime = sec.board.SourceTime
		}
	}

	return &merged, conflicts, contributed
}

// mergeDeparture folds one secondary record into the base record for the
// same physical service. Real-time fields are adopted where the base has
// none; static fields keep the primary's values and are only filled when
// empty. Disagreement on cancellation, or estimates more than 5 minutes
// apart, counts as one conflict per field and keeps the base value.
//
// Real-time precedence is deliberately resolved as "the higher-priority
// source that has a value wins": the sources carry no cross-comparable
// activation timestamp, so a realtime field present on the base is taken
// as the most recently activated one and is never overwritten, only
// filled when absent. This also keeps the fold commutative on
// non-conflicting fields.
func mergeDeparture(base, other models.Departure) (models.Departure, int, bool) {
	conflicts := 0
	changed := false

	if base.IsCancelled != other.IsCancelled {
		conflicts++
	}

	switch {
	case base.EstimatedTime == nil && other.EstimatedTime != nil && !base.IsCancelled:
		est := *other.EstimatedTime
		base.EstimatedTime = &est
		base.DelayMinutes = other.DelayMinutes
		if base.DelayMinutes > 0 {
			base.Status = models.StatusDelayed
		} else {
			base.Status = models.StatusOnTime
		}
		changed = true
	case base.EstimatedTime != nil && other.EstimatedTime != nil:
		diff := base.EstimatedTime.Sub(*other.EstimatedTime)
		if diff < 0 {
			diff = -diff
		}
		if diff > conflictThreshold {
			conflicts++
		}
	}

	if base.Platform == "" && other.Platform != "" {
		base.Platform = other.Platform
		changed = true
	}
	if base.DelayReason == "" && other.DelayReason != "" {
		base.DelayReason = other.DelayReason
		changed = true
	}
	if base.CancelReason == "" && other.CancelReason != "" && base.IsCancelled {
		base.CancelReason = other.CancelReason
		changed = true
	}
	if base.OperatorName == "" && other.OperatorName != "" {
		base.OperatorName = other.OperatorName
		changed = true
	}
	if len(base.Origin) == 0 && len(other.Origin) > 0 {
		base.Origin = other.Origin
		changed = true
	}

	// invariants hold regardless of what was adopted
	if base.IsCancelled {
		base.Status = models.StatusCancelled
		base.DelayMinutes = 0
	}

	return base, conflicts, changed
}
