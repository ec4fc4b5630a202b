package expirer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"newsbase/lib/store"
	"newsbase/lib/store/storetest"
)

type fakeTarget struct {
	groups []string
	fail   string

	mu      sync.Mutex
	cutoffs map[string]time.Time
	pruned  time.Time
}

func (f *fakeTarget) Groups(context.Context) (gs []store.Group, _ error) {
	for _, g := range f.groups {
		gs = append(gs, store.Group{Name: g})
	}
	return
}

func (f *fakeTarget) Expire(_ context.Context, group string, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if group == f.fail {
		return 0, store.ErrBackendUnavailable
	}
	f.cutoffs[group] = cutoff
	return 2, nil
}

func (f *fakeTarget) PruneHistory(_ context.Context, before time.Time) (int64, error) {
	f.pruned = before
	return 5, nil
}

var now = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func TestRunOnce(t *testing.T) {
	f := &fakeTarget{
		groups:  []string{"alt.binaries.x", "alt.test", "comp.lang.go", "misc.keep"},
		cutoffs: map[string]time.Time{},
	}
	e, err := New(Config{
		Target: f,
		Schedule: Schedule{
			Rules: []Rule{
				{Pattern: "alt.binaries.**", MaxAge: day},
				{Pattern: "misc.keep", MaxAge: 0},
				{Pattern: "", MaxAge: 30 * day},
			},
			HistoryKeep: 60 * day,
		},
		Parallel: 2,
		Logger:   storetest.Logger(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Groups != 3 || res.Rows != 6 || res.History != 5 {
		t.Errorf("result %+v", res)
	}
	want := map[string]time.Time{
		"alt.binaries.x": now.Add(-day),
		"alt.test":       now.Add(-30 * day),
		"comp.lang.go":   now.Add(-30 * day),
	}
	for g, c := range want {
		if !f.cutoffs[g].Equal(c) {
			t.Errorf("%s cutoff %v, want %v", g, f.cutoffs[g], c)
		}
	}
	if _, ok := f.cutoffs["misc.keep"]; ok {
		t.Error("misc.keep swept")
	}
	if !f.pruned.Equal(now.Add(-60 * day)) {
		t.Errorf("history pruned before %v", f.pruned)
	}
}

func TestRunOncePartialFailure(t *testing.T) {
	f := &fakeTarget{
		groups:  []string{"a.one", "a.two", "a.three"},
		fail:    "a.two",
		cutoffs: map[string]time.Time{},
	}
	e, err := New(Config{Target: f, Schedule: Schedule{Rules: []Rule{{MaxAge: day}}}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.RunOnce(context.Background(), now)
	if !errors.Is(err, store.ErrBackendUnavailable) {
		t.Errorf("err %v", err)
	}
	var swept []string
	for g := range f.cutoffs {
		swept = append(swept, g)
	}
	sort.Strings(swept)
	if len(swept) != 2 || swept[0] != "a.one" || swept[1] != "a.three" || res.Rows != 4 {
		t.Errorf("swept %v, %+v", swept, res)
	}
	if !f.pruned.IsZero() {
		t.Error("history pruned with zero keep")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		s  Schedule
		ok bool
	}{
		{DefaultSchedule, true},
		{Schedule{}, true},
		{Schedule{Cron: "@daily"}, true},
		{Schedule{Cron: "61 * * * *"}, false},
		{Schedule{Cron: "every day"}, false},
		{Schedule{Rules: []Rule{{Pattern: "misc.[x", MaxAge: day}}}, false},
		{Schedule{Rules: []Rule{{Pattern: "misc.*", MaxAge: -day}}}, false},
		{Schedule{HistoryKeep: -1}, false},
	}
	for i, tt := range tests {
		err := tt.s.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("%d: %v", i, err)
		}
		if err != nil && !errors.Is(err, ErrSchedule) {
			t.Errorf("%d: not ErrSchedule: %v", i, err)
		}
	}
}

func TestRunStops(t *testing.T) {
	for _, cron := range []string{"", "* * * * *"} {
		e, err := New(Config{Target: &fakeTarget{}, Schedule: Schedule{Cron: cron}})
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		if err = e.Run(ctx); err != nil {
			t.Errorf("%q: %v", cron, err)
		}
		cancel()
	}
}
