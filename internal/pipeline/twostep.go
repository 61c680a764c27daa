package pipeline

import "github.com/tradsys-labs/exchange-core/internal/domain"

// ExceptionHandler receives programmer-fault panics recovered from a
// stage's processing step (§5 "Cancellation and timeouts", §7
// "Propagation"). The stage advances its sequence regardless, so a single
// bad command can never stall the pipeline.
type ExceptionHandler interface {
	HandleException(stage string, seq domain.Seq, cause any)
}

// TwoStepSlave is driven directly by its master rather than polling the
// ring buffer barrier itself (§4.12, §5 NoWaitStrategy).
type TwoStepSlave interface {
	// HandlingCycle processes every published sequence in
	// (lastProcessed, upTo] synchronously and returns once done.
	HandlingCycle(upTo domain.Seq)
}

// twoStepCoupling runs a master stage (risk R1, or matching ME acting as
// master of risk R2) that processes the ring buffer up to the publish
// cursor and, at each group boundary, calls its slave's HandlingCycle
// before continuing (§4.12).
type twoStepCoupling struct {
	name    string
	rb      *RingBuffer
	wait    WaitStrategy
	halted  *haltFlag
	exc     ExceptionHandler
	process func(seq domain.Seq, cmd *domain.OrderCommand) (boundary bool)
	slave   TwoStepSlave
}

// run is the master's event-processor loop. It exits once halted and the
// backlog up to the last observed publish cursor has drained (§5
// "Pending work is drained up to the observed publish cursor").
func (c *twoStepCoupling) run() {
	var processed domain.Seq = -1
	var lastSlaveUpTo domain.Seq = -1

	for {
		avail := c.wait.WaitFor(processed+1, c.rb.Published, c.halted)
		if avail < processed+1 {
			if c.halted.isSet() {
				return
			}
			continue
		}

		boundaryAt := domain.Seq(-1)
		for seq := processed + 1; seq <= avail; seq++ {
			cmd := c.rb.Slot(seq)
			boundary := c.safeProcess(seq, cmd)
			processed = seq
			if boundary {
				boundaryAt = seq
			}
		}

		if boundaryAt >= 0 {
			c.slave.HandlingCycle(boundaryAt)
			lastSlaveUpTo = boundaryAt
		}

		if c.halted.isSet() && processed >= c.rb.Published() {
			if lastSlaveUpTo < processed {
				c.slave.HandlingCycle(processed)
			}
			return
		}
	}
}

func (c *twoStepCoupling) safeProcess(seq domain.Seq, cmd *domain.OrderCommand) (boundary bool) {
	defer func() {
		if r := recover(); r != nil && c.exc != nil {
			c.exc.HandleException(c.name, seq, r)
		}
	}()
	return c.process(seq, cmd)
}
