package digest

import (
	"testing"
	"time"
)

func TestQuietWindow(t *testing.T) {
	t.Parallel()

	q := NewQuiet()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if q.Suppressed(now) {
		t.Fatal("fresh quiet state should not suppress")
	}

	until := q.Activate(now, 6*time.Hour)
	if want := now.Add(6 * time.Hour); !until.Equal(want) {
		t.Fatalf("Activate returned %v, want %v", until, want)
	}
	if !q.Suppressed(now.Add(5 * time.Hour)) {
		t.Fatal("should suppress inside the window")
	}
	// Expiry is lazy: the boundary itself is no longer quiet.
	if q.Suppressed(until) {
		t.Fatal("should not suppress at expiry")
	}
	if q.Suppressed(until.Add(time.Minute)) {
		t.Fatal("should not suppress after expiry")
	}
}

func TestQuietRestoreAndClear(t *testing.T) {
	t.Parallel()

	q := NewQuiet()
	now := time.Now()
	q.Restore(now.Add(time.Hour))
	if !q.Suppressed(now) {
		t.Fatal("restored window should suppress")
	}
	q.Clear()
	if q.Suppressed(now) {
		t.Fatal("cleared window should not suppress")
	}
	if !q.Until().IsZero() {
		t.Fatal("Until should be zero after Clear")
	}
}
