package cron

import (
	"testing"
	"time"
)

func FuzzParseSchedule(f *testing.F) {
	f.Add("*/5 * * * *")
	f.Add("0 0 * * *")
	f.Add("0 8 * * *")
	f.Add("@daily")
	f.Add("@every 1h")
	f.Add("invalid")
	f.Add("")
	f.Add("60 * * * *")
	f.Add("0 25 * * *")

	f.Fuzz(func(t *testing.T, expr string) {
		// Must not panic; errors are expected and acceptable.
		sched, err := ParseSchedule(expr)
		if err != nil {
			return
		}
		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		if next := sched.Next(from); !next.IsZero() && !next.After(from) {
			t.Errorf("Next(%v) = %v, want a later time", from, next)
		}
	})
}

func FuzzBackoffDelay(f *testing.F) {
	f.Add(int64(30*time.Second), int64(time.Hour), 1)
	f.Add(int64(time.Nanosecond), int64(0), 200)
	f.Add(int64(-1), int64(-1), -5)

	f.Fuzz(func(t *testing.T, base, limit int64, attempt int) {
		b := Backoff{Base: time.Duration(base), Max: time.Duration(limit)}
		d := b.Delay(attempt)
		if d <= 0 {
			t.Fatalf("Delay(%d) = %v, want positive", attempt, d)
		}
		want := b.Max
		if want <= 0 {
			want = DefaultBackoffMax
		}
		if d > want {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempt, d, want)
		}
	})
}
