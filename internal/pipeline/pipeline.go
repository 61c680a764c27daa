// Package pipeline wires the ring buffer, grouping processor, two-step
// risk/matching coupling, and results stage into the single pipelined
// event loop described in §4.11, §4.12, §5.
package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/matching"
	"github.com/tradsys-labs/exchange-core/internal/risk"
)

// WaitStrategyKind selects a deployment's waiting strategy (§5, §6
// "waitStrategy" config knob).
type WaitStrategyKind uint8

const (
	WaitBusySpin WaitStrategyKind = iota
	WaitYielding
	WaitBlocking
)

func newWaitStrategy(kind WaitStrategyKind) WaitStrategy {
	switch kind {
	case WaitYielding:
		return YieldingWait{}
	case WaitBlocking:
		return NewBlockingWait()
	default:
		return BusySpinWait{}
	}
}

// Config mirrors §6's "Configuration knobs recognised by the core" subset
// that the pipeline itself consumes; symbol/user shard counts live one
// level up in internal/config's Config.
type Config struct {
	RingBufferSize   int
	MsgsInGroupLimit int
	MaxGroupDuration time.Duration
	ResultsWait      WaitStrategyKind
	ReportWorkers    int // ants pool size for async report serialization
}

func DefaultConfig() Config {
	return Config{
		RingBufferSize:   1 << 16,
		MsgsInGroupLimit: 1024,
		MaxGroupDuration: time.Millisecond,
		ResultsWait:      WaitYielding,
		ReportWorkers:    4,
	}
}

// ResultHandler observes each settled command in sequence order, in the
// §6 order: commandResult, then its events, then any L2 snapshot.
type ResultHandler func(cmd *domain.OrderCommand)

// Pipeline is the single-producer event loop: Publish feeds commands in,
// the risk/matching coupling settles them, and Results delivers them in
// order to the installed ResultHandler (§5, §6).
type Pipeline struct {
	cfg Config
	rb  *RingBuffer
	log *zap.Logger
	exc ExceptionHandler

	grouping *GroupingProcessor
	risk     *risk.Engine
	router   *matching.Router

	r1Metrics *StageMetrics
	meMetrics *StageMetrics
	r2Metrics *StageMetrics

	settled atomic.Int64 // highest sequence fully through ME+R2, -1 if none
	halted  *haltFlag

	reportPool *ants.Pool

	nextSeq  domain.Seq
	boundary []bool // parallel to the ring buffer's slots, set at Publish time
	ringMask int64
}

// New wires a pipeline around an already-constructed risk engine and
// matching router, which own the user/symbol state this process is
// responsible for (a single risk shard and a single matching shard; a
// multi-shard deployment runs one Pipeline per shard and partitions
// commands upstream by uidMask/shardMask per §4.5/§4.6).
func New(cfg Config, riskEngine *risk.Engine, router *matching.Router, log *zap.Logger) (*Pipeline, error) {
	reportPool, err := ants.NewPool(cfg.ReportWorkers)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:        cfg,
		rb:         NewRingBuffer(cfg.RingBufferSize),
		log:        log,
		exc:        NewZapExceptionHandler(log),
		grouping:   NewGroupingProcessor(cfg.MsgsInGroupLimit, cfg.MaxGroupDuration.Nanoseconds()),
		risk:       riskEngine,
		router:     router,
		r1Metrics:  NewStageMetrics("risk_prehold"),
		meMetrics:  NewStageMetrics("matching"),
		r2Metrics:  NewStageMetrics("risk_release"),
		halted:     newHaltFlag(),
		reportPool: reportPool,
		boundary:   make([]bool, cfg.RingBufferSize),
		ringMask:   int64(cfg.RingBufferSize - 1),
	}
	p.settled.Store(-1)
	p.nextSeq = 0
	return p, nil
}

// Publish claims the next ring slot, lets fill populate the command,
// stamps it with its events group, and makes it visible to the risk
// stage (§6 "Command stream").
func (p *Pipeline) Publish(fill func(cmd *domain.OrderCommand)) domain.Seq {
	seq := p.nextSeq
	p.nextSeq++

	slot := p.rb.Slot(seq)
	slot.Reset()
	slot.Seq = seq
	fill(slot)
	isBoundary := p.grouping.Assign(slot, int64(slot.Timestamp))
	p.boundary[int64(seq)&p.ringMask] = isBoundary

	p.rb.Publish(seq)
	return seq
}

// Run starts the R1-master/ME+R2-slave coupling and the results stage on
// the caller's goroutine's behalf, returning once Halt is called and the
// backlog drains. Call it from its own goroutine.
func (p *Pipeline) Run(onResult ResultHandler) {
	slave := &matchAndReleaseSlave{p: p, lastHandled: -1}
	coupling := &twoStepCoupling{
		name:   "risk_prehold",
		rb:     p.rb,
		wait:   BusySpinWait{},
		halted: p.halted,
		exc:    p.exc,
		slave:  slave,
		process: func(seq domain.Seq, cmd *domain.OrderCommand) bool {
			start := time.Now()
			p.preHold(cmd)
			p.r1Metrics.Observe(start)
			return p.boundary[int64(seq)&p.ringMask]
		},
	}

	go p.runResults(onResult)
	coupling.run()
}

// Halt raises the halt flag; stage loops exit at their next wait point
// after draining pending work up to the last observed publish (§5).
func (p *Pipeline) Halt() {
	p.halted.set()
}

// preHold is the risk shard's R1 step (§4.6): PLACE_ORDER reserves its
// worst-case cost and leaves the command ACCEPTED for matching to finish;
// the user-management commands are handled entirely here, with no
// matching-stage involvement; every other command type passes through
// unchanged to ME.
//
// OrderCommand has no dedicated Currency/transactionID fields (it is the
// one generic envelope shared by all 18 command kinds, per §6) so
// BALANCE_ADJUSTMENT reuses SymbolID as the currency code and UserCookie
// as the transaction id, Size as the signed amount — the same
// field-repurposing the wire's five-word binary frames already do for
// other command kinds.
func (p *Pipeline) preHold(cmd *domain.OrderCommand) {
	profiles := p.risk.Profiles()
	switch cmd.Type {
	case domain.CommandPlaceOrder:
		if code := p.risk.PreHold(cmd); code != domain.ResultSuccess {
			cmd.ResultCode = code
		} else {
			cmd.ResultCode = domain.ResultAccepted
		}
	case domain.CommandAddUser:
		cmd.ResultCode = profiles.AddUser(cmd.UID)
	case domain.CommandSuspendUser:
		cmd.ResultCode = profiles.SuspendUser(cmd.UID)
	case domain.CommandResumeUser:
		cmd.ResultCode = profiles.ResumeUser(cmd.UID)
	case domain.CommandBalanceAdjustment:
		currency := domain.Currency(cmd.SymbolID)
		_, code := profiles.BalanceAdjustment(cmd.UID, currency, int64(cmd.Size), cmd.UserCookie)
		cmd.ResultCode = code
	case domain.CommandMoveOrder, domain.CommandCancelOrder, domain.CommandReduceOrder, domain.CommandOrderBookRequest:
		cmd.ResultCode = domain.ResultAccepted
	default:
		cmd.ResultCode = domain.ResultAccepted
	}
}

// matchAndReleaseSlave is ME acting as the two-step slave of R1, with R2
// (risk release) folded into the same HandlingCycle rather than run as a
// third independently-threaded stage: R2 for command S only ever needs
// the events ME just produced for S, so there is nothing to gain from a
// separate thread boundary here beyond what §5's ordering guarantee
// ("matching for S completes before risk release for S") already forces
// serially. This is a deliberate simplification over a literal three-
// coupling chain, recorded in DESIGN.md.
type matchAndReleaseSlave struct {
	p           *Pipeline
	lastHandled domain.Seq
}

func (s *matchAndReleaseSlave) HandlingCycle(upTo domain.Seq) {
	p := s.p
	for seq := s.lastHandled + 1; seq <= upTo; seq++ {
		cmd := p.rb.Slot(seq)
		s.process(seq, cmd)
	}
	s.lastHandled = upTo
	p.settled.Store(int64(upTo))
}

func (s *matchAndReleaseSlave) process(seq domain.Seq, cmd *domain.OrderCommand) {
	p := s.p
	defer func() {
		if r := recover(); r != nil {
			p.exc.HandleException("matching_release", seq, r)
		}
	}()

	if cmd.ResultCode != domain.ResultAccepted {
		return
	}

	if cmd.Type == domain.CommandBinaryDataCommand || cmd.Type == domain.CommandBinaryDataQuery {
		start := time.Now()
		p.router.ProcessBinary(cmd, p.risk)
		p.meMetrics.Observe(start)
		return
	}

	if !cmd.Type.IsMatchingCommand() {
		return
	}

	start := time.Now()
	p.router.Process(cmd)
	p.meMetrics.Observe(start)

	// PLACE_ORDER reserved an R1 hold; MOVE, CANCEL and REDUCE never debit
	// one but do re-price, shrink or remove a prior PLACE's hold, so they
	// still need R2 to settle it (§4.6 "REJECT/REDUCE: return the reserved
	// hold"). ORDER_BOOK_REQUEST never touches risk. A rejected FOK place
	// leaves ResultAccepted and still needs R2 to return its hold.
	bookOpSucceeded := cmd.ResultCode == domain.ResultSuccess || cmd.ResultCode == domain.ResultAccepted
	releasable := cmd.Type == domain.CommandPlaceOrder || cmd.Type == domain.CommandMoveOrder ||
		cmd.Type == domain.CommandCancelOrder || cmd.Type == domain.CommandReduceOrder
	if bookOpSucceeded && releasable {
		r2Start := time.Now()
		if code := p.risk.Release(cmd); code != domain.ResultSuccess {
			cmd.ResultCode = code
		} else {
			cmd.ResultCode = domain.ResultSuccess
		}
		p.r2Metrics.Observe(r2Start)
	} else if cmd.ResultCode == domain.ResultAccepted {
		cmd.ResultCode = domain.ResultSuccess
	}
}

// runResults delivers settled commands to onResult in strict sequence
// order (§6 "Results stream"), using the configured wait strategy since
// this consumer is independent of the R1/ME/R2 hot path and may lag
// under load without affecting determinism.
func (p *Pipeline) runResults(onResult ResultHandler) {
	wait := newWaitStrategy(p.cfg.ResultsWait)
	settledCursor := func() domain.Seq { return domain.Seq(p.settled.Load()) }
	var delivered domain.Seq = -1
	for {
		target := wait.WaitFor(delivered+1, settledCursor, p.halted)
		if target < delivered+1 {
			if p.halted.isSet() {
				return
			}
			continue
		}
		for seq := delivered + 1; seq <= target; seq++ {
			cmd := p.rb.Slot(seq)
			if onResult != nil {
				onResult(cmd)
			}
			if cmd.Type == domain.CommandBinaryDataQuery || cmd.Type == domain.CommandOrderBookRequest {
				p.submitReportSerialization(cmd)
			}
		}
		delivered = target
		if p.halted.isSet() && delivered >= domain.Seq(p.settled.Load()) {
			return
		}
	}
}

// submitReportSerialization offloads report/L2 snapshot serialization to
// the bounded ants pool, off the hot matching/risk goroutines (§6,
// DESIGN.md: ants used only for this async responder path).
func (p *Pipeline) submitReportSerialization(cmd *domain.OrderCommand) {
	md := cmd.MarketData
	seq := cmd.Seq
	_ = p.reportPool.Submit(func() {
		if md == nil {
			return
		}
		_ = md.Copy() // simulate the serialize-for-wire step; actual transport encoding lives in internal/transport/grpc
		p.log.Debug("report serialized", zap.Int64("seq", int64(seq)))
	})
}

// Close releases the report worker pool.
func (p *Pipeline) Close() {
	p.reportPool.Release()
}
