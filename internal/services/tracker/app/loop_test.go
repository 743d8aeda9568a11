package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
	"github.com/louisbranch/gamewatch/internal/services/tracker/settings"
)

type fakeSource struct {
	reports []SnapshotReport
	errs    []error
	calls   int
}

func (f *fakeSource) Fetch(context.Context) (SnapshotReport, error) {
	i := f.calls
	f.calls++
	if i >= len(f.reports) {
		i = len(f.reports) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.reports[i], err
}

type fakePresence struct {
	counts []int
}

func (f *fakePresence) UpdatePresence(_ context.Context, liveCount int) error {
	f.counts = append(f.counts, liveCount)
	return nil
}

type connAwareSink struct {
	*fakeSink
	up bool
}

func (c *connAwareSink) Connected() bool { return c.up }

func (c *connAwareSink) WaitConnected(ctx context.Context) error { return ctx.Err() }

func testSettings(t *testing.T, ttl time.Duration) *settings.Store {
	t.Helper()
	store, err := settings.Load("")
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if err := store.Update(func(s *domain.Settings) { s.TTL = ttl }); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	return store
}

func testBanlist(t *testing.T, words ...string) *BanlistWatcher {
	t.Helper()
	path := ""
	if len(words) > 0 {
		path = filepath.Join(t.TempDir(), "banlist.txt")
		if err := os.WriteFile(path, []byte(strings.Join(words, "\n")), 0o644); err != nil {
			t.Fatalf("write banlist: %v", err)
		}
	}
	watcher, err := NewBanlistWatcher(path)
	if err != nil {
		t.Fatalf("new banlist watcher: %v", err)
	}
	t.Cleanup(func() { watcher.Close() })
	return watcher
}

func snapshot(id string, players ...string) domain.Snapshot {
	return domain.Snapshot{ID: id, Kind: "DRTL", Version: "1.0.0", TickRate: 20, Players: players}
}

func TestLoopCycleLifecycle(t *testing.T) {
	sink := newFakeSink()
	source := &fakeSource{reports: []SnapshotReport{
		{Games: []domain.Snapshot{snapshot("aaaa1", "Alice"), snapshot("bbbb1", "Bob")}},
		{Games: []domain.Snapshot{snapshot("aaaa1", "Alice", "Carol")}},
		{Games: []domain.Snapshot{snapshot("aaaa1", "Alice", "Carol")}},
	}}
	presence := &fakePresence{}
	loop := NewLoop(Config{EmptyRetries: 1, EmptyRetryDelay: time.Millisecond}, source, sink, testSettings(t, 90*time.Second), testBanlist(t), nil, presence)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.clock = func() time.Time { return now }

	// Cycle 1: both sessions appear plus the status line.
	loop.runCycle(context.Background())
	if loop.pool.Len() != 3 {
		t.Fatalf("pool.Len() = %d, want 3", loop.pool.Len())
	}
	if !strings.Contains(sink.messages["m3"], "**2** public games") {
		t.Errorf("status = %q, want plural count", sink.messages["m3"])
	}

	// Cycle 2: AAAA1 refreshed with a new roster, BBBB1 missing but within
	// its TTL so it stays live.
	now = now.Add(60 * time.Second)
	loop.runCycle(context.Background())
	if got := loop.registry.Len(); got != 2 {
		t.Fatalf("registry.Len() = %d, want 2", got)
	}
	if !strings.Contains(sink.messages["m1"], "Carol") {
		t.Errorf("m1 = %q, want updated roster", sink.messages["m1"])
	}
	if !strings.Contains(sink.messages["m2"], "**BBBB1**") {
		t.Errorf("m2 = %q, want BBBB1 still live", sink.messages["m2"])
	}

	// Cycle 3: BBBB1 is past its TTL. Its terminal render lands in the
	// front slot, AAAA1 shifts into the next slot, and the old status slot
	// keeps the (unchanged) singular form in the recycled position.
	now = now.Add(60 * time.Second)
	loop.runCycle(context.Background())
	if got := loop.registry.Len(); got != 1 {
		t.Fatalf("registry.Len() = %d, want 1", got)
	}
	if !strings.Contains(sink.messages["m1"], "~~BBBB1~~") {
		t.Errorf("m1 = %q, want struck-through BBBB1", sink.messages["m1"])
	}
	if !strings.Contains(sink.messages["m1"], "Ended after:") {
		t.Errorf("m1 = %q, want closure line", sink.messages["m1"])
	}
	if !strings.Contains(sink.messages["m2"], "**AAAA1**") {
		t.Errorf("m2 = %q, want AAAA1", sink.messages["m2"])
	}
	if !strings.Contains(sink.messages["m3"], "**1** public game.") {
		t.Errorf("m3 = %q, want singular status", sink.messages["m3"])
	}
	if loop.pool.Len() != 2 {
		t.Fatalf("pool.Len() = %d, want 2", loop.pool.Len())
	}

	wantPresence := []int{2, 1}
	if len(presence.counts) != len(wantPresence) {
		t.Fatalf("presence.counts = %v, want %v", presence.counts, wantPresence)
	}
	for i, want := range wantPresence {
		if presence.counts[i] != want {
			t.Fatalf("presence.counts = %v, want %v", presence.counts, wantPresence)
		}
	}
}

func TestLoopDropsInvalidSessions(t *testing.T) {
	sink := newFakeSink()
	source := &fakeSource{reports: []SnapshotReport{
		{Games: []domain.Snapshot{
			snapshot("good1", "Alice"),
			snapshot("chars", "Bad Name"),
			snapshot("curse", "xXBadWordXx"),
		}},
	}}
	loop := NewLoop(Config{EmptyRetries: 1, EmptyRetryDelay: time.Millisecond}, source, sink, testSettings(t, time.Minute), testBanlist(t, "badword"), nil, nil)

	loop.runCycle(context.Background())

	if got := loop.registry.Len(); got != 1 {
		t.Fatalf("registry.Len() = %d, want 1", got)
	}
	if _, ok := loop.registry.Get("GOOD1"); !ok {
		t.Error("GOOD1 missing from registry")
	}
}

func TestLoopRetriesEmptySnapshots(t *testing.T) {
	sink := newFakeSink()
	games := SnapshotReport{Games: []domain.Snapshot{snapshot("aaaa1", "Alice")}}
	source := &fakeSource{reports: []SnapshotReport{{}, {}, games}}
	loop := NewLoop(Config{EmptyRetries: 3, EmptyRetryDelay: time.Millisecond}, source, sink, testSettings(t, time.Minute), testBanlist(t), nil, nil)

	loop.runCycle(context.Background())

	if source.calls != 3 {
		t.Fatalf("source.calls = %d, want 3", source.calls)
	}
	if got := loop.registry.Len(); got != 1 {
		t.Fatalf("registry.Len() = %d, want 1", got)
	}
}

func TestLoopAcceptsEmptyAfterRetryBudget(t *testing.T) {
	sink := newFakeSink()
	source := &fakeSource{reports: []SnapshotReport{{}}}
	loop := NewLoop(Config{EmptyRetries: 2, EmptyRetryDelay: time.Millisecond}, source, sink, testSettings(t, time.Minute), testBanlist(t), nil, nil)

	loop.runCycle(context.Background())

	if source.calls != 3 {
		t.Fatalf("source.calls = %d, want 3", source.calls)
	}
	// The empty report is believed; the pool still gets a status line.
	if loop.pool.Len() != 1 {
		t.Fatalf("pool.Len() = %d, want 1", loop.pool.Len())
	}
	if !strings.Contains(sink.messages["m1"], "**0** public games") {
		t.Errorf("m1 = %q, want zero-count status", sink.messages["m1"])
	}
}

func TestLoopTimeoutAbortsCycle(t *testing.T) {
	sink := newFakeSink()
	source := &fakeSource{
		reports: []SnapshotReport{{}},
		errs:    []error{context.DeadlineExceeded},
	}
	loop := NewLoop(Config{EmptyRetries: 1, EmptyRetryDelay: time.Millisecond}, source, sink, testSettings(t, time.Minute), testBanlist(t), nil, nil)

	loop.runCycle(context.Background())

	if source.calls != 1 {
		t.Fatalf("source.calls = %d, want 1", source.calls)
	}
	if len(sink.calls) != 0 {
		t.Fatalf("sink.calls = %v, want none on aborted cycle", sink.calls)
	}
}

func TestLoopExpiryDuringDisconnectConvergesAfterReconnect(t *testing.T) {
	sink := &connAwareSink{fakeSink: newFakeSink(), up: true}
	source := &fakeSource{reports: []SnapshotReport{
		{Games: []domain.Snapshot{snapshot("aaaa1", "Alice")}},
		{},
	}}
	loop := NewLoop(Config{EmptyRetries: 1, EmptyRetryDelay: time.Millisecond}, source, sink, testSettings(t, 90*time.Second), testBanlist(t), nil, nil)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	loop.clock = func() time.Time { return now }

	loop.runCycle(context.Background())
	if loop.pool.Len() != 2 {
		t.Fatalf("pool.Len() = %d, want 2", loop.pool.Len())
	}

	// The session expires while the gateway is down. Its terminal render
	// must be held for delivery, not dropped with the suspended cycle.
	now = now.Add(2 * time.Minute)
	sink.up = false
	sink.reset()
	loop.runCycle(context.Background())
	if len(sink.calls) != 0 {
		t.Fatalf("sink.calls = %v, want none while disconnected", sink.calls)
	}
	if got := loop.registry.Len(); got != 0 {
		t.Fatalf("registry.Len() = %d, want 0", got)
	}

	sink.up = true
	loop.runCycle(context.Background())
	if !strings.Contains(sink.messages["m1"], "~~AAAA1~~") {
		t.Errorf("m1 = %q, want struck-through AAAA1", sink.messages["m1"])
	}
	if !strings.Contains(sink.messages["m2"], "**0** public games") {
		t.Errorf("m2 = %q, want zero-count status", sink.messages["m2"])
	}
	if loop.pool.Len() != 1 {
		t.Fatalf("pool.Len() = %d, want 1", loop.pool.Len())
	}
}

func TestLoopDisconnectedSuspendsProjection(t *testing.T) {
	sink := &connAwareSink{fakeSink: newFakeSink()}
	source := &fakeSource{reports: []SnapshotReport{
		{Games: []domain.Snapshot{snapshot("aaaa1", "Alice")}},
	}}
	loop := NewLoop(Config{EmptyRetries: 1, EmptyRetryDelay: time.Millisecond}, source, sink, testSettings(t, time.Minute), testBanlist(t), nil, nil)

	loop.runCycle(context.Background())

	if len(sink.calls) != 0 {
		t.Fatalf("sink.calls = %v, want none while disconnected", sink.calls)
	}
	if loop.state != StateDisconnected {
		t.Fatalf("state = %v, want %v", loop.state, StateDisconnected)
	}
	// The registry still merged; only the projection was withheld.
	if got := loop.registry.Len(); got != 1 {
		t.Fatalf("registry.Len() = %d, want 1", got)
	}
}
