package grpc

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/pipeline"
)

// Server implements ExchangeServer over a Pipeline: each inbound frame is
// decoded and published as one OrderCommand in the BINARY_DATA_QUERY
// family, correlated by a per-call UserCookie; the terminal frame's
// settled result is echoed back once the pipeline's results stage
// delivers it to HandleResult (§6 "Binary framing", "Persistence
// contract" — this is the collaborator side of the same async-boundary
// rule, §9: nothing here runs on the R1/ME/R2 hot path).
type Server struct {
	pipeline *pipeline.Pipeline
	log      *zap.Logger
	lim      *limiter.Limiter

	mu      sync.Mutex
	waiters map[int64]chan *domain.OrderCommand

	nextCookie atomic.Int64
}

// NewServer builds a Server whose submission-rate limit is rate (§6
// GRPCConfig.RateLimitPerSec), backed by an in-memory limiter store since
// rate limiting here is per-process, not shared across replicas.
func NewServer(p *pipeline.Pipeline, log *zap.Logger, rate limiter.Rate) *Server {
	return &Server{
		pipeline: p,
		log:      log,
		lim:      limiter.New(memory.NewStore(), rate),
		waiters:  make(map[int64]chan *domain.OrderCommand),
	}
}

// HandleResult is installed as (part of) the pipeline's ResultHandler; it
// delivers a settled binary-query/command result to whichever Stream call
// is waiting on its UserCookie correlation id.
func (s *Server) HandleResult(cmd *domain.OrderCommand) {
	if cmd.Type != domain.CommandBinaryDataQuery && cmd.Type != domain.CommandBinaryDataCommand {
		return
	}
	s.mu.Lock()
	ch, ok := s.waiters[cmd.UserCookie]
	if ok {
		delete(s.waiters, cmd.UserCookie)
	}
	s.mu.Unlock()
	if ok {
		ch <- cmd
	}
}

func (s *Server) register(cookie int64) chan *domain.OrderCommand {
	ch := make(chan *domain.OrderCommand, 1)
	s.mu.Lock()
	s.waiters[cookie] = ch
	s.mu.Unlock()
	return ch
}

func (s *Server) forget(cookie int64) {
	s.mu.Lock()
	delete(s.waiters, cookie)
	s.mu.Unlock()
}

// Stream implements ExchangeServer. Frames sharing one UserCookie
// reconstitute one logical query per §6's multi-frame contract; the
// terminal frame (symbol == -1) is the one whose settled result this call
// waits on and echoes back.
func (s *Server) Stream(stream ExchangeStreamServer) error {
	ctx := stream.Context()
	limiterKey := peerKey(ctx)

	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		limCtx, err := s.lim.Get(ctx, limiterKey)
		if err != nil {
			return status.Errorf(codes.Internal, "rate limiter: %v", err)
		}
		if limCtx.Reached {
			return status.Error(codes.ResourceExhausted, "submission rate exceeded")
		}

		cmd, orderIDHigh, err := decodeWireFrame(*frame)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "%v", err)
		}
		cmd.Type = domain.CommandBinaryDataQuery
		cookie := s.nextCookie.Add(1)
		cmd.UserCookie = cookie

		terminal := cmd.SymbolID == -1
		var waitCh chan *domain.OrderCommand
		if terminal {
			waitCh = s.register(cookie)
		}

		s.pipeline.Publish(func(slot *domain.OrderCommand) {
			seq := slot.Seq
			*slot = *cmd
			slot.Seq = seq
		})

		if !terminal {
			continue
		}

		select {
		case settled := <-waitCh:
			reply := encodeWireFrame(settled, orderIDHigh)
			if err := stream.Send((*Frame)(&reply)); err != nil {
				return err
			}
		case <-time.After(5 * time.Second):
			s.forget(cookie)
			return status.Error(codes.DeadlineExceeded, "query did not settle in time")
		case <-ctx.Done():
			s.forget(cookie)
			return ctx.Err()
		}
	}
}

// RateFromConfig builds the per-second submission rate §6's GRPCConfig
// knob describes.
func RateFromConfig(perSecond int64) limiter.Rate {
	return limiter.Rate{Period: time.Second, Limit: perSecond}
}

func peerKey(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	return p.Addr.String()
}
