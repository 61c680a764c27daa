// Command exchange is the process entrypoint: it wires a single risk/
// matching shard pair into a Pipeline and serves the gRPC transport edge,
// fx-lifecycle managed the way the teacher wires its own services.
package main

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/fx"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"

	"github.com/tradsys-labs/exchange-core/internal/art"
	"github.com/tradsys-labs/exchange-core/internal/config"
	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/logging"
	"github.com/tradsys-labs/exchange-core/internal/matching"
	"github.com/tradsys-labs/exchange-core/internal/persistence"
	"github.com/tradsys-labs/exchange-core/internal/persistence/natsjournal"
	"github.com/tradsys-labs/exchange-core/internal/persistence/pgsnapshot"
	"github.com/tradsys-labs/exchange-core/internal/pipeline"
	"github.com/tradsys-labs/exchange-core/internal/pool"
	"github.com/tradsys-labs/exchange-core/internal/risk"
	grpctransport "github.com/tradsys-labs/exchange-core/internal/transport/grpc"
)

func main() {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			providePoolManager,
			provideRiskEngine,
			provideRouter,
			providePipeline,
			provideGRPCServer,
			provideTransportServer,
			providePersistence,
		),
		fx.Invoke(registerTransport, runPersistence, runPipeline, startGRPCServer),
	)
	app.Run()
}

func provideConfig() config.Config {
	return config.Default()
}

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON, Service: "exchange-core"})
}

func providePoolManager(cfg config.Config) *pool.Manager {
	return pool.NewManager(cfg.PoolProfile, false, art.Factories())
}

func provideRiskEngine() *risk.Engine {
	return risk.NewEngine(risk.NewProfiles())
}

// provideRouter builds a Router over an empty in-memory SpecProvider,
// filled at run time by ADD_SYMBOLS binary commands. This process does
// not call ReplayJournalFull on startup (see runPersistence), so no spec
// is restored from a snapshot.
func provideRouter(cfg config.Config, mgr *pool.Manager) (*matching.Router, error) {
	return matching.NewRouter(matching.NewSpecRegistry(), mgr, cfg.BookKind)
}

func providePipeline(cfg config.Config, riskEngine *risk.Engine, router *matching.Router, log *zap.Logger) (*pipeline.Pipeline, error) {
	return pipeline.New(cfg.PipelineConfig(), riskEngine, router, log)
}

func provideGRPCServer() *grpclib.Server {
	return grpclib.NewServer()
}

func provideTransportServer(cfg config.Config, p *pipeline.Pipeline, log *zap.Logger) *grpctransport.Server {
	return grpctransport.NewServer(p, log, grpctransport.RateFromConfig(cfg.GRPC.RateLimitPerSec))
}

func registerTransport(s *grpclib.Server, srv *grpctransport.Server) {
	grpctransport.Register(s, srv)
}

// providePersistence builds the collaborator-side Processor (§6 "Persistence
// contract"): Postgres-backed snapshots, NATS JetStream-backed journaling.
func providePersistence(cfg config.Config, log *zap.Logger) (persistence.Processor, error) {
	snapshots, err := pgsnapshot.Open(cfg.Persistence.PostgresDSN, log)
	if err != nil {
		return nil, fmt.Errorf("cmd/exchange: open snapshot store: %w", err)
	}
	journalCfg := natsjournal.DefaultConfig()
	journalCfg.URL = cfg.Persistence.NATSURL
	journal, err := natsjournal.Open(journalCfg, log)
	if err != nil {
		return nil, fmt.Errorf("cmd/exchange: open journal: %w", err)
	}
	return persistence.NewComposite(snapshots, journal), nil
}

// runPersistence enables journaling for this shard's matching-engine-router
// module before the pipeline starts accepting commands, per §6's
// InitialState replay sequence. Snapshot-driven replay against the router
// and risk engine's actual state is a follow-on, not yet built (see
// DESIGN.md) — this process always boots ReplayCleanStart.
func runPersistence(lc fx.Lifecycle, proc persistence.Processor, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return proc.EnableJournaling(ctx, -1)
		},
	})
}

// runPipeline starts the pipeline's event loop, fanning settled commands
// out to the transport server's correlation map and the journal; both are
// collaborators off the hot path (§9 "the async boundary lives only at the
// API edge").
func runPipeline(lc fx.Lifecycle, p *pipeline.Pipeline, srv *grpctransport.Server, proc persistence.Processor, log *zap.Logger) {
	onResult := func(cmd *domain.OrderCommand) {
		srv.HandleResult(cmd)
		// ResultHandler is per-command, not per-group; group-boundary
		// information isn't part of its contract, so every journaled
		// entry is written as its own batch of one.
		entry := persistence.JournalEntry{Cmd: cmd, DSeq: cmd.Seq, EndOfBatch: true}
		if err := proc.WriteToJournal(context.Background(), entry); err != nil {
			log.Error("journal write failed", zap.Int64("seq", int64(cmd.Seq)), zap.Error(err))
		}
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go p.Run(onResult)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Halt()
			p.Close()
			return nil
		},
	})
}

func startGRPCServer(lc fx.Lifecycle, cfg config.Config, s *grpclib.Server, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
			if err != nil {
				return fmt.Errorf("cmd/exchange: listen %s: %w", cfg.GRPC.ListenAddr, err)
			}
			go func() {
				log.Info("gRPC server starting", zap.String("addr", cfg.GRPC.ListenAddr))
				if err := s.Serve(lis); err != nil {
					log.Error("gRPC server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.GracefulStop()
			return nil
		},
	})
}
