package session

import "testing"

func TestDefaultThreads(t *testing.T) {
	for cpus, want := range map[int]int{1: 1, 4: 1, 8: 2, 16: 4, 64: 16} {
		if got := DefaultThreads(cpus); got != want {
			t.Fatalf("DefaultThreads(%d)=%d want %d", cpus, got, want)
		}
	}
}

func TestResolveConfigFromTrainedContext(t *testing.T) {
	c, err := resolveConfig(nil, 4096, 8)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.Capacity != 4096 || c.BatchSize != 4096 {
		t.Fatalf("capacity=%d batch=%d", c.Capacity, c.BatchSize)
	}
	if c.MaxTokens != 256 || c.MinKeep != 512 || c.KeepRatio != 0.75 || c.Threads != 2 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Sampling.TopK != 50 || c.Sampling.TopP != 0.9 || c.Sampling.Temperature != 0.5 {
		t.Fatalf("sampling defaults: %+v", c.Sampling)
	}
}

func TestResolveConfigUnknownTrainedContext(t *testing.T) {
	c, err := resolveConfig(&Config{}, 0, 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.Capacity != 2048 {
		t.Fatalf("capacity=%d want 2048", c.Capacity)
	}
}

func TestResolveConfigExplicit(t *testing.T) {
	c, err := resolveConfig(&Config{Capacity: 512, Threads: 16}, 4096, 8)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.BatchSize != 64 {
		t.Fatalf("batch=%d want 64 for 16 threads", c.BatchSize)
	}
	if c.MinKeep != 128 || c.MaxTokens != 256 {
		t.Fatalf("min keep=%d max tokens=%d", c.MinKeep, c.MaxTokens)
	}

	c, err = resolveConfig(&Config{Capacity: 8, BatchSize: 64}, 0, 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.BatchSize != 8 || c.MaxTokens != 4 {
		t.Fatalf("batch=%d max=%d", c.BatchSize, c.MaxTokens)
	}
}

func TestResolveConfigMinKeep(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 128},
		{NoMinKeep, 0},
		{40, 40},
	}
	for _, c := range cases {
		got, err := resolveConfig(&Config{Capacity: 512, MinKeep: c.in}, 0, 4)
		if err != nil {
			t.Fatalf("min keep %d: %v", c.in, err)
		}
		if got.MinKeep != c.want {
			t.Fatalf("min keep %d resolved to %d, want %d", c.in, got.MinKeep, c.want)
		}
	}
	w := Window{Capacity: 100, KeepRatio: 0.75, MinKeep: 0}
	if n, err := w.Plan(24, 49, 30); err != nil || n != 6 {
		t.Fatalf("no floor: evict=%d err=%v, want 6", n, err)
	}
}

func TestResolveConfigInvalid(t *testing.T) {
	bad := []Config{
		{Capacity: 128, MaxTokens: 128},
		{Capacity: 128, KeepRatio: 1.5},
		{Capacity: 128, MinKeep: 200},
		{Capacity: 128, PromptFormat: "no placeholder"},
		{Capacity: 128, PromptFormat: "{prompt}{prompt}"},
	}
	for _, c := range bad {
		if _, err := resolveConfig(&c, 0, 4); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}
