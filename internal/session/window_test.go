package session

import "testing"

func TestWindowPlanWorkedExample(t *testing.T) {
	w := Window{Capacity: 2048, KeepRatio: 0.75, MinKeep: 512}
	n, err := w.Plan(2040, 20, 80)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if n != 510 {
		t.Fatalf("evict=%d want 510", n)
	}
	if post := 2040 - n + 20; post != 1550 || post+80 > 2048 {
		t.Fatalf("post-evaluate position %d", post)
	}
}

func TestWindowPlan(t *testing.T) {
	w := Window{Capacity: 100, KeepRatio: 0.75, MinKeep: 20}
	cases := []struct {
		name               string
		pos, incoming, max int
		want               int
		overflow           bool
	}{
		{"fits", 50, 10, 40, 0, false},
		{"exact fit", 60, 10, 30, 0, false},
		{"ratio dominates", 80, 5, 20, 20, false},
		{"overflow dominates", 90, 30, 20, 40, false},
		{"clamped to floor", 24, 49, 30, 4, false},
		{"cannot fit", 40, 70, 30, 0, true},
		{"empty context too small", 0, 90, 20, 0, true},
	}
	for _, c := range cases {
		n, err := w.Plan(c.pos, c.incoming, c.max)
		if c.overflow {
			if !IsContextOverflow(err) {
				t.Fatalf("%s: want overflow, got n=%d err=%v", c.name, n, err)
			}
			if n != 0 {
				t.Fatalf("%s: overflow must evict nothing, got %d", c.name, n)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if n != c.want {
			t.Fatalf("%s: evict=%d want %d", c.name, n, c.want)
		}
		if c.pos-n+c.incoming+c.max > w.Capacity {
			t.Fatalf("%s: plan leaves no room", c.name)
		}
		if n > 0 && c.pos-n < min(w.MinKeep, c.pos) {
			t.Fatalf("%s: evicted below floor", c.name)
		}
	}
}

func TestWindowPlanDecimalRatios(t *testing.T) {
	cases := []struct {
		keep float64
		want int
	}{
		{0.9, 100},
		{0.8, 200},
		{0.7, 300},
		{0.75, 250},
		{1, 50},
	}
	for _, c := range cases {
		w := Window{Capacity: 1100, KeepRatio: c.keep}
		n, err := w.Plan(1000, 50, 100)
		if err != nil {
			t.Fatalf("keep %g: %v", c.keep, err)
		}
		if n != c.want {
			t.Fatalf("keep %g: evict=%d want %d", c.keep, n, c.want)
		}
	}
}
