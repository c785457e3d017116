package remoteconfig

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func deterministicSchedule() *BackoffSchedule {
	return &BackoffSchedule{
		StartupWindow: 30 * time.Second,
		Min:           30 * time.Second,
		Max:           10 * time.Minute,
		Rand:          rand.New(rand.NewSource(1)),
	}
}

func TestBackoffSchedule_Next_StartupStaircase(t *testing.T) {
	b := deterministicSchedule()

	for attempt, want := range startupStaircase {
		got := b.Next(5*time.Second, attempt)
		assert.Equal(t, want, got, "attempt %d", attempt)
	}
}

func TestBackoffSchedule_Next_PostWindowAfterStaircaseExhausted(t *testing.T) {
	b := deterministicSchedule()

	got := b.Next(5*time.Second, len(startupStaircase))
	assert.GreaterOrEqual(t, got, b.Min*8/10)
}

func TestBackoffSchedule_Next_PostWindowOnceElapsedExceedsWindow(t *testing.T) {
	b := deterministicSchedule()

	got := b.Next(b.StartupWindow+time.Second, 0)
	assert.GreaterOrEqual(t, got, b.Min*8/10)
	assert.LessOrEqual(t, got, b.Min)
}

func TestBackoffSchedule_PostWindow_ClampsToMax(t *testing.T) {
	b := deterministicSchedule()
	b.Max = 100 * time.Millisecond
	b.Min = 10 * time.Millisecond

	got := b.postWindow(20)
	assert.LessOrEqual(t, got, b.Max)
}

func TestBackoffSchedule_ReplicaCooldown_ZeroOnNoFailures(t *testing.T) {
	b := deterministicSchedule()
	assert.Equal(t, time.Duration(0), b.ReplicaCooldown(0))
}

func TestBackoffSchedule_ReplicaCooldown_GrowsWithFailures(t *testing.T) {
	b := deterministicSchedule()
	b.Max = time.Hour

	first := b.ReplicaCooldown(1)
	fifth := b.ReplicaCooldown(5)
	assert.Greater(t, fifth, first)
}

func TestBackoffSchedule_Jitter_StaysWithinBounds(t *testing.T) {
	b := deterministicSchedule()
	base := 10 * time.Second

	for i := 0; i < 50; i++ {
		got := b.jitter(base)
		assert.GreaterOrEqual(t, got, base*8/10)
		assert.LessOrEqual(t, got, base)
	}
}

func TestBackoffSchedule_Jitter_NilRandFallsBackSafely(t *testing.T) {
	b := &BackoffSchedule{Min: time.Second, Max: time.Minute}
	assert.NotPanics(t, func() {
		b.jitter(time.Second)
	})
}
