package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
)

type sinkCall struct {
	op     string
	handle string
	text   string
}

// fakeSink records writes and fails selectively by handle or text.
type fakeSink struct {
	nextID   int
	calls    []sinkCall
	messages map[string]string
	failEdit map[string]error
	failNext error
}

func newFakeSink() *fakeSink {
	return &fakeSink{messages: map[string]string{}, failEdit: map[string]error{}}
}

func (f *fakeSink) Create(_ context.Context, text string) (string, error) {
	f.calls = append(f.calls, sinkCall{op: "create", text: text})
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	f.nextID++
	handle := fmt.Sprintf("m%d", f.nextID)
	f.messages[handle] = text
	return handle, nil
}

func (f *fakeSink) Edit(_ context.Context, handle, text string) error {
	f.calls = append(f.calls, sinkCall{op: "edit", handle: handle, text: text})
	if err, ok := f.failEdit[handle]; ok {
		return err
	}
	if _, ok := f.messages[handle]; !ok {
		return domain.ErrSlotGone
	}
	f.messages[handle] = text
	return nil
}

func (f *fakeSink) reset() {
	f.calls = nil
}

func TestReconcileCreatesSlotsAndStatus(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)

	pool.Reconcile(context.Background(), nil, []string{"game A", "game B"}, "2 games")

	if pool.Len() != 3 {
		t.Fatalf("pool.Len() = %d, want 3", pool.Len())
	}
	if sink.messages["m1"] != "game A" || sink.messages["m2"] != "game B" || sink.messages["m3"] != "2 games" {
		t.Fatalf("messages = %v", sink.messages)
	}
}

func TestReconcileSecondPassIsIdempotent(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	pool.Reconcile(context.Background(), nil, []string{"game A"}, "1 game")
	sink.reset()

	pool.Reconcile(context.Background(), nil, []string{"game A"}, "1 game")

	if len(sink.calls) != 0 {
		t.Fatalf("sink.calls = %v, want none", sink.calls)
	}
}

func TestReconcileEndedSessionRecyclesFrontSlot(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	pool.Reconcile(context.Background(), nil, []string{"game A", "game B"}, "2 games")
	sink.reset()

	// A ends; B shifts into the front slot and the old B slot takes the
	// status. The prior status slot keeps trailing without a write.
	pool.Reconcile(context.Background(), []string{"~~game A~~"}, []string{"game B"}, "1 game")

	if pool.Len() != 2 {
		t.Fatalf("pool.Len() = %d, want 2", pool.Len())
	}
	if sink.messages["m1"] != "~~game A~~" {
		t.Errorf("m1 = %q, want terminal text", sink.messages["m1"])
	}
	if sink.messages["m2"] != "game B" {
		t.Errorf("m2 = %q, want %q", sink.messages["m2"], "game B")
	}
	if sink.messages["m3"] != "1 game" {
		t.Errorf("m3 = %q, want %q", sink.messages["m3"], "1 game")
	}
	for _, call := range sink.calls {
		if call.op != "edit" {
			t.Errorf("unexpected %s call, recycling must reuse slots", call.op)
		}
	}
}

func TestReconcileGrowthAppendsNewStatusSlot(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	pool.Reconcile(context.Background(), nil, []string{"game A"}, "1 game")
	sink.reset()

	pool.Reconcile(context.Background(), nil, []string{"game A", "game B"}, "2 games")

	if pool.Len() != 3 {
		t.Fatalf("pool.Len() = %d, want 3", pool.Len())
	}
	// Old status slot m2 is overwritten with the new session; a fresh
	// status message is appended.
	if sink.messages["m2"] != "game B" {
		t.Errorf("m2 = %q, want %q", sink.messages["m2"], "game B")
	}
	if sink.messages["m3"] != "2 games" {
		t.Errorf("m3 = %q, want %q", sink.messages["m3"], "2 games")
	}
}

func TestReconcileFailedTerminalEditRetriesNextCycle(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	pool.Reconcile(context.Background(), nil, []string{"game A", "game B"}, "2 games")
	sink.reset()

	sink.failEdit["m1"] = domain.Transient(errors.New("rate limited"))
	pool.Reconcile(context.Background(), []string{"~~game A~~"}, []string{"game B"}, "1 game")

	// The failed slot stays reserved at the front; live content pairs with
	// the slots after it, so nothing else moves.
	if pool.Len() != 3 {
		t.Fatalf("pool.Len() = %d, want 3", pool.Len())
	}
	if sink.messages["m1"] != "game A" {
		t.Errorf("m1 = %q, want untouched", sink.messages["m1"])
	}
	if sink.messages["m3"] != "1 game" {
		t.Errorf("m3 = %q, want %q", sink.messages["m3"], "1 game")
	}

	delete(sink.failEdit, "m1")
	sink.reset()
	pool.Reconcile(context.Background(), nil, []string{"game B"}, "1 game")

	if sink.messages["m1"] != "~~game A~~" {
		t.Errorf("m1 = %q, want terminal text after retry", sink.messages["m1"])
	}
	if pool.Len() != 2 {
		t.Fatalf("pool.Len() = %d, want 2", pool.Len())
	}
}

func TestReconcileDeliversQueuedTerminalsFirst(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	pool.Reconcile(context.Background(), nil, []string{"game A", "game B"}, "2 games")
	sink.reset()

	// A ended while writes were suspended; its render was queued instead of
	// reconciled. The next cycle treats it like any other terminal edit.
	pool.QueueTerminal([]string{"~~game A~~"})
	pool.Reconcile(context.Background(), nil, []string{"game B"}, "1 game")

	if sink.messages["m1"] != "~~game A~~" {
		t.Errorf("m1 = %q, want queued terminal text", sink.messages["m1"])
	}
	if sink.messages["m3"] != "1 game" {
		t.Errorf("m3 = %q, want %q", sink.messages["m3"], "1 game")
	}
	if pool.Len() != 2 {
		t.Fatalf("pool.Len() = %d, want 2", pool.Len())
	}
}

func TestReconcileSlotGoneOnTerminalEditCountsAsDone(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	pool.Reconcile(context.Background(), nil, []string{"game A"}, "1 game")
	sink.reset()

	delete(sink.messages, "m1")
	pool.Reconcile(context.Background(), []string{"~~game A~~"}, nil, "0 games")

	if pool.Len() != 1 {
		t.Fatalf("pool.Len() = %d, want 1", pool.Len())
	}
	if sink.messages["m2"] != "0 games" {
		t.Errorf("m2 = %q, want status text", sink.messages["m2"])
	}
}

func TestReconcileGoneLiveSlotIsRecreatedNextCycle(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	pool.Reconcile(context.Background(), nil, []string{"game A"}, "1 game")
	sink.reset()

	// Someone deletes the session message by hand. The edit reports gone,
	// the slot is dropped, and the next cycle recreates the message.
	delete(sink.messages, "m1")
	pool.Reconcile(context.Background(), nil, []string{"game A v2"}, "1 game")

	if pool.Len() != 1 {
		t.Fatalf("pool.Len() = %d, want 1", pool.Len())
	}

	sink.reset()
	pool.Reconcile(context.Background(), nil, []string{"game A v2"}, "1 game")

	if pool.Len() != 2 {
		t.Fatalf("pool.Len() = %d, want 2", pool.Len())
	}
	if sink.messages["m3"] != "1 game" {
		t.Errorf("m3 = %q, want appended status", sink.messages["m3"])
	}
}

func TestReconcileFailedCreateRetriesNextCycle(t *testing.T) {
	sink := newFakeSink()
	pool := NewPool(sink)
	sink.failNext = domain.Transient(errors.New("network down"))

	pool.Reconcile(context.Background(), nil, []string{"game A"}, "1 game")

	// The session create failed but the status create went through.
	if pool.Len() != 1 {
		t.Fatalf("pool.Len() = %d, want 1", pool.Len())
	}

	pool.Reconcile(context.Background(), nil, []string{"game A"}, "1 game")
	if pool.Len() != 2 {
		t.Fatalf("pool.Len() = %d, want 2 after retry", pool.Len())
	}
}
