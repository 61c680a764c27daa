package pipeline

import (
	"runtime"
	"sync"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

// cursor is anything that exposes a monotonically advancing published
// sequence; both the ring buffer's publish cursor and a stage's settled
// cursor satisfy it, so one family of WaitStrategy implementations
// serves every barrier in the pipeline (§5).
type cursor func() domain.Seq

// WaitStrategy blocks a consumer until cur() has advanced past seq, or
// until halted (§5 "Waiting strategies are selectable per-deployment").
type WaitStrategy interface {
	WaitFor(seq domain.Seq, cur cursor, halted *haltFlag) domain.Seq
}

// BusySpinWait never yields the CPU; lowest latency, used by the R1 master
// of the two-step coupling waiting on the ring buffer's publish cursor.
type BusySpinWait struct{}

func (BusySpinWait) WaitFor(seq domain.Seq, cur cursor, halted *haltFlag) domain.Seq {
	for {
		if avail := cur(); avail >= seq {
			return avail
		}
		if halted.isSet() {
			return cur()
		}
	}
}

// YieldingWait spins but calls runtime.Gosched between checks, trading a
// little latency for fairness to other goroutines on the same CPU.
type YieldingWait struct{}

func (YieldingWait) WaitFor(seq domain.Seq, cur cursor, halted *haltFlag) domain.Seq {
	for {
		if avail := cur(); avail >= seq {
			return avail
		}
		if halted.isSet() {
			return cur()
		}
		runtime.Gosched()
	}
}

// BlockingWait parks on a condition variable, signalled externally via
// Notify whenever the watched cursor advances. Lowest CPU usage, highest
// latency; suited to downstream consumers (journaling, L2 publication)
// where lag is acceptable.
type BlockingWait struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func NewBlockingWait() *BlockingWait {
	w := &BlockingWait{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *BlockingWait) Notify() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *BlockingWait) WaitFor(seq domain.Seq, cur cursor, halted *haltFlag) domain.Seq {
	w.mu.Lock()
	for {
		if avail := cur(); avail >= seq || halted.isSet() {
			w.mu.Unlock()
			return avail
		}
		w.cond.Wait()
	}
}

// NoWaitStrategy never blocks on a barrier: it returns the cursor as it
// stands. The pipeline's two-step slave does not hold it or any other
// WaitStrategy; the slave is driven directly by its master's
// HandlingCycle call rather than polling a cursor itself (§5, §4.12).
type NoWaitStrategy struct{}

func (NoWaitStrategy) WaitFor(seq domain.Seq, cur cursor, halted *haltFlag) domain.Seq {
	return cur()
}

// haltFlag is a simple stop signal checked by every wait strategy's poll
// loop (§5 "Cancellation and timeouts").
type haltFlag struct {
	ch chan struct{}
}

func newHaltFlag() *haltFlag {
	return &haltFlag{ch: make(chan struct{})}
}

func (h *haltFlag) set() {
	select {
	case <-h.ch:
	default:
		close(h.ch)
	}
}

func (h *haltFlag) isSet() bool {
	select {
	case <-h.ch:
		return true
	default:
		return false
	}
}
