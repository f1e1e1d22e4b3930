package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railboard/railboard_core/internal/models"
)

func TestIdentityKeyMatchesAcrossSources(t *testing.T) {
	sched := time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC)

	fromDarwin := models.Departure{
		ServiceID:     "darwin:ABC123",
		OperatorCode:  "GR",
		ScheduledTime: sched,
		Destination:   []models.Location{{Name: "Edinburgh", LocationCode: "EDB"}},
	}
	fromRTT := models.Departure{
		ServiceID:     "rtt:W12345:2026-08-28",
		OperatorCode:  "gr",
		ScheduledTime: sched,
		Destination:   []models.Location{{Name: "Edinburgh Waverley", LocationCode: "edb"}},
	}

	assert.Equal(t, identityKey(fromDarwin), identityKey(fromRTT),
		"same physical service must match regardless of native identifier scheme")
}

func TestIdentityKeyDistinguishesServices(t *testing.T) {
	sched := time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC)
	a := models.Departure{OperatorCode: "GR", ScheduledTime: sched,
		Destination: []models.Location{{LocationCode: "EDB"}}}

	t.Run("different scheduled minute", func(t *testing.T) {
		b := a
		b.ScheduledTime = sched.Add(time.Minute)
		assert.NotEqual(t, identityKey(a), identityKey(b))
	})

	t.Run("different destination", func(t *testing.T) {
		b := a
		b.Destination = []models.Location{{LocationCode: "LDS"}}
		assert.NotEqual(t, identityKey(a), identityKey(b))
	})

	t.Run("different operator", func(t *testing.T) {
		b := a
		b.OperatorCode = "VT"
		assert.NotEqual(t, identityKey(a), identityKey(b))
	})
}

func TestMergeDepartureCommutativeOnNonConflictingFields(t *testing.T) {
	sched := time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC)
	est := sched.Add(3 * time.Minute)

	a := models.Departure{
		ServiceID:     "darwin:1",
		OperatorCode:  "GR",
		ScheduledTime: sched,
		EstimatedTime: &est,
		DelayMinutes:  3,
		Status:        models.StatusDelayed,
		Destination:   []models.Location{{Name: "Edinburgh", LocationCode: "EDB"}},
	}
	b := models.Departure{
		ServiceID:     "rtt:1",
		OperatorCode:  "GR",
		ScheduledTime: sched,
		Platform:      "5",
		OperatorName:  "LNER",
		Destination:   []models.Location{{Name: "Edinburgh", LocationCode: "EDB"}},
	}

	ab, conflictsAB, _ := mergeDeparture(a, b)
	ba, conflictsBA, _ := mergeDeparture(b, a)

	assert.Equal(t, 0, conflictsAB)
	assert.Equal(t, 0, conflictsBA)

	// disjoint fields land identically regardless of merge order
	assert.Equal(t, "5", ab.Platform)
	assert.Equal(t, "5", ba.Platform)
	assert.Equal(t, "LNER", ab.OperatorName)
	assert.Equal(t, "LNER", ba.OperatorName)
	require.NotNil(t, ab.EstimatedTime)
	require.NotNil(t, ba.EstimatedTime)
	assert.True(t, ab.EstimatedTime.Equal(*ba.EstimatedTime))
	assert.Equal(t, ab.DelayMinutes, ba.DelayMinutes)
	assert.Equal(t, ab.Status, ba.Status)
}

func TestMergeDepartureIdempotent(t *testing.T) {
	sched := time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC)
	a := models.Departure{OperatorCode: "GR", ScheduledTime: sched, Platform: "5",
		Destination: []models.Location{{LocationCode: "EDB"}}, Status: models.StatusOnTime}
	b := models.Departure{OperatorCode: "GR", ScheduledTime: sched, Platform: "5",
		Destination: []models.Location{{LocationCode: "EDB"}}, Status: models.StatusOnTime}

	once, conflicts1, _ := mergeDeparture(a, b)
	twice, conflicts2, _ := mergeDeparture(once, b)

	assert.Equal(t, once, twice)
	assert.Equal(t, 0, conflicts1+conflicts2)
}

func TestMergeDepartureConflicts(t *testing.T) {
	sched := time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC)

	t.Run("cancellation disagreement counts once", func(t *testing.T) {
		a := models.Departure{ScheduledTime: sched, Status: models.StatusOnTime}
		b := models.Departure{ScheduledTime: sched, Status: models.StatusCancelled, IsCancelled: true}

		_, conflicts, _ := mergeDeparture(a, b)
		assert.Equal(t, 1, conflicts)
	})

	t.Run("estimates more than five minutes apart conflict", func(t *testing.T) {
		estA := sched.Add(2 * time.Minute)
		estB := sched.Add(10 * time.Minute)
		a := models.Departure{ScheduledTime: sched, EstimatedTime: &estA}
		b := models.Departure{ScheduledTime: sched, EstimatedTime: &estB}

		merged, conflicts, _ := mergeDeparture(a, b)
		assert.Equal(t, 1, conflicts)
		// primary keeps its own estimate on disagreement
		assert.True(t, merged.EstimatedTime.Equal(estA))
	})

	t.Run("estimates within five minutes do not conflict", func(t *testing.T) {
		estA := sched.Add(2 * time.Minute)
		estB := sched.Add(6 * time.Minute)
		a := models.Departure{ScheduledTime: sched, EstimatedTime: &estA}
		b := models.Departure{ScheduledTime: sched, EstimatedTime: &estB}

		_, conflicts, _ := mergeDeparture(a, b)
		assert.Equal(t, 0, conflicts)
	})
}

func TestMergeDepartureCancellationInvariants(t *testing.T) {
	sched := time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC)
	est := sched.Add(12 * time.Minute)

	cancelled := models.Departure{ScheduledTime: sched, Status: models.StatusCancelled, IsCancelled: true}
	delayed := models.Departure{ScheduledTime: sched, EstimatedTime: &est, DelayMinutes: 12, Status: models.StatusDelayed}

	merged, _, _ := mergeDeparture(cancelled, delayed)
	assert.True(t, merged.IsCancelled)
	assert.Equal(t, models.StatusCancelled, merged.Status)
	assert.Equal(t, 0, merged.DelayMinutes, "delay must be zero when cancelled")
	assert.Nil(t, merged.EstimatedTime, "a cancelled service gains no estimate")
}

func TestMergeBoardsSecondaryNeverAddsRows(t *testing.T) {
	sched := time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC)
	primary := &models.StationBoard{
		StationCode: "KGX",
		Departures: []models.Departure{
			{OperatorCode: "GR", ScheduledTime: sched, Destination: []models.Location{{LocationCode: "EDB"}}},
		},
	}
	secondary := &models.StationBoard{
		StationCode: "KGX",
		Departures: []models.Departure{
			{OperatorCode: "GR", ScheduledTime: sched.Add(30 * time.Minute), Destination: []models.Location{{LocationCode: "LDS"}}},
		},
	}

	merged, conflicts, contributed := mergeBoards(primary, []fetchResult{{name: "rtt", board: secondary}})
	assert.Len(t, merged.Departures, 1, "the primary departure list stays authoritative")
	assert.Equal(t, 0, conflicts)
	assert.Empty(t, contributed)
}
