package app

import (
	"context"
	"errors"
	"log"

	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
)

// Slot is one chat message owned by the pool, with the text last written to
// it so unchanged renders can skip the edit.
type Slot struct {
	Handle       string
	LastRendered string
}

// Pool maps the registry onto an ordered run of chat messages. Slots are
// recycled by editing in place: ended sessions consume slots from the front,
// live sessions pair positionally with the remainder, and the trailing slot
// always carries the status line. Messages are never deleted.
type Pool struct {
	sink  Sink
	slots []Slot

	// Terminal renders whose edit failed transiently. Their slots stay
	// reserved at the front of the pool until the edit lands, so each slot
	// still sees at most one write per cycle.
	pendingTerminal []string
}

// NewPool returns an empty pool writing through sink.
func NewPool(sink Sink) *Pool {
	return &Pool{sink: sink}
}

// Len returns the number of slots the pool currently owns.
func (p *Pool) Len() int {
	return len(p.slots)
}

// QueueTerminal stashes terminal renders for the next reconcile. Callers use
// it when slot writes are suspended, so sessions that end in the meantime
// still get their closing edit once writes resume.
func (p *Pool) QueueTerminal(texts []string) {
	p.pendingTerminal = append(p.pendingTerminal, texts...)
}

// Reconcile drives the message channel to match this cycle's output: one
// terminal edit per session that ended, the live renders in registry order,
// then the status line. Failures are logged and retried on later cycles;
// Reconcile never returns an error because no single write failure should
// stop the rest of the cycle's writes.
func (p *Pool) Reconcile(ctx context.Context, endedTexts, liveTexts []string, statusText string) {
	reserved := p.writeTerminal(ctx, endedTexts)
	gone := p.writeLive(ctx, reserved, liveTexts)
	p.writeStatus(ctx, reserved+len(liveTexts), statusText)
	p.prune(gone)
}

// writeTerminal pops slots from the front of the pool for ended sessions.
// A slot whose edit fails transiently is kept reserved with its text queued;
// it returns the count of such reserved slots.
func (p *Pool) writeTerminal(ctx context.Context, endedTexts []string) int {
	terminal := append(p.pendingTerminal, endedTexts...)
	p.pendingTerminal = nil

	reserved := 0
	for _, text := range terminal {
		if reserved >= len(p.slots) {
			// More ended sessions than slots. The overflow was never
			// displayed as live, so there is nothing to strike through.
			break
		}
		slot := p.slots[reserved]
		err := p.sink.Edit(ctx, slot.Handle, text)
		switch {
		case err == nil, errors.Is(err, domain.ErrSlotGone):
			p.slots = append(p.slots[:reserved], p.slots[reserved+1:]...)
		default:
			log.Printf("terminal edit failed for slot %s: %v", slot.Handle, err)
			p.pendingTerminal = append(p.pendingTerminal, text)
			reserved++
		}
	}
	return reserved
}

// writeLive pairs live renders positionally with the slots after the
// reserved prefix, editing only when the text changed, and creates new slots
// for sessions past the end of the pool. It returns the positions of slots
// discovered gone, to be pruned after the status write.
func (p *Pool) writeLive(ctx context.Context, reserved int, liveTexts []string) map[int]bool {
	gone := make(map[int]bool)
	for i, text := range liveTexts {
		pos := reserved + i
		if pos >= len(p.slots) {
			handle, err := p.sink.Create(ctx, text)
			if err != nil {
				log.Printf("create slot failed: %v", err)
				continue
			}
			p.slots = append(p.slots, Slot{Handle: handle, LastRendered: text})
			continue
		}

		slot := &p.slots[pos]
		if slot.LastRendered == text {
			continue
		}
		err := p.sink.Edit(ctx, slot.Handle, text)
		switch {
		case err == nil:
			slot.LastRendered = text
		case errors.Is(err, domain.ErrSlotGone):
			gone[pos] = true
		default:
			log.Printf("live edit failed for slot %s: %v", slot.Handle, err)
		}
	}
	return gone
}

// writeStatus puts the status line in the slot after the live run, creating
// it when the pool just grew.
func (p *Pool) writeStatus(ctx context.Context, pos int, statusText string) {
	if pos >= len(p.slots) {
		handle, err := p.sink.Create(ctx, statusText)
		if err != nil {
			log.Printf("create status slot failed: %v", err)
			return
		}
		p.slots = append(p.slots, Slot{Handle: handle, LastRendered: statusText})
		return
	}

	slot := &p.slots[pos]
	if slot.LastRendered == statusText {
		return
	}
	err := p.sink.Edit(ctx, slot.Handle, statusText)
	switch {
	case err == nil:
		slot.LastRendered = statusText
	case errors.Is(err, domain.ErrSlotGone):
		p.slots = append(p.slots[:pos], p.slots[pos+1:]...)
	default:
		log.Printf("status edit failed for slot %s: %v", slot.Handle, err)
	}
}

func (p *Pool) prune(gone map[int]bool) {
	if len(gone) == 0 {
		return
	}
	kept := p.slots[:0]
	for i, slot := range p.slots {
		if !gone[i] {
			kept = append(kept, slot)
		}
	}
	p.slots = kept
}
