// Package natsjournal implements persistence.JournalStore on NATS
// JetStream: writes go through watermill's NATS publisher (so journaling
// composes with the rest of the stack's watermill-based messaging), reads
// use a raw JetStream pull consumer since replay needs precise control
// over which messages to redeliver.
package natsjournal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/persistence"
)

// Config selects the NATS stream a Store journals onto.
type Config struct {
	URL         string
	Stream      string // JetStream stream name, e.g. "exchange-journal"
	Subject     string // subject entries are published/read on
	MaxAgeDays  int
	MaxBytes    int64
}

func DefaultConfig() Config {
	return Config{
		URL:        natsgo.DefaultURL,
		Stream:     "exchange-journal",
		Subject:    "journal.commands",
		MaxAgeDays: 7,
		MaxBytes:   1 << 30,
	}
}

// wireEntry is the JSON-on-the-wire shape of a JournalEntry; OrderCommand's
// event/market-data pointers are not journaled, only the command fields a
// replay needs to re-admit it (§6 "WriteToJournal").
type wireEntry struct {
	DSeq       int64            `json:"dSeq"`
	EndOfBatch bool             `json:"endOfBatch"`
	Cmd        wireOrderCommand `json:"cmd"`
}

type wireOrderCommand struct {
	Seq             int64 `json:"seq"`
	Type            uint8 `json:"type"`
	OrderID         int64 `json:"orderId"`
	SymbolID        int32 `json:"symbolId"`
	Price           int64 `json:"price"`
	Size            int64 `json:"size"`
	ReserveBidPrice int64 `json:"reserveBidPrice"`
	Action          uint8 `json:"action"`
	OrderType       uint8 `json:"orderType"`
	UID             int64 `json:"uid"`
	Timestamp       int64 `json:"timestamp"`
	UserCookie      int64 `json:"userCookie"`
	ServiceFlags    int64 `json:"serviceFlags"`
	Group           int64 `json:"group"`
}

func toWire(e persistence.JournalEntry) wireEntry {
	c := e.Cmd
	return wireEntry{
		DSeq:       int64(e.DSeq),
		EndOfBatch: e.EndOfBatch,
		Cmd: wireOrderCommand{
			Seq:             int64(c.Seq),
			Type:            uint8(c.Type),
			OrderID:         int64(c.OrderID),
			SymbolID:        int32(c.SymbolID),
			Price:           int64(c.Price),
			Size:            int64(c.Size),
			ReserveBidPrice: int64(c.ReserveBidPrice),
			Action:          uint8(c.Action),
			OrderType:       uint8(c.OrderType),
			UID:             int64(c.UID),
			Timestamp:       int64(c.Timestamp),
			UserCookie:      c.UserCookie,
			ServiceFlags:    c.ServiceFlags,
			Group:           int64(c.Group),
		},
	}
}

func fromWire(w wireEntry) persistence.JournalEntry {
	cmd := &domain.OrderCommand{
		Seq:             domain.Seq(w.Cmd.Seq),
		Type:            domain.CommandType(w.Cmd.Type),
		OrderID:         domain.OrderID(w.Cmd.OrderID),
		SymbolID:        domain.SymbolID(w.Cmd.SymbolID),
		Price:           domain.Price(w.Cmd.Price),
		Size:            domain.Size(w.Cmd.Size),
		ReserveBidPrice: domain.Price(w.Cmd.ReserveBidPrice),
		Action:          domain.OrderAction(w.Cmd.Action),
		OrderType:       domain.OrderType(w.Cmd.OrderType),
		UID:             domain.UID(w.Cmd.UID),
		Timestamp:       domain.Timestamp(w.Cmd.Timestamp),
		UserCookie:      w.Cmd.UserCookie,
		ServiceFlags:    w.Cmd.ServiceFlags,
		Group:           domain.Group(w.Cmd.Group),
	}
	return persistence.JournalEntry{Cmd: cmd, DSeq: domain.Seq(w.DSeq), EndOfBatch: w.EndOfBatch}
}

// Store is a persistence.JournalStore backed by a NATS JetStream stream.
type Store struct {
	cfg Config
	log *zap.Logger

	conn *natsgo.Conn
	js   natsgo.JetStreamContext

	publisher message.Publisher
	enabled   bool
	afterSeq  domain.Seq
}

// Open connects to NATS, ensures the journal stream exists, and builds the
// watermill publisher entries are written through.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	conn, err := natsgo.Connect(cfg.URL, natsgo.Name("exchange-core-journal"))
	if err != nil {
		return nil, fmt.Errorf("natsjournal: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsjournal: jetstream context: %w", err)
	}
	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		_, err := js.AddStream(&natsgo.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
			MaxAge:   time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
			MaxBytes: cfg.MaxBytes,
			Storage:  natsgo.FileStorage,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("natsjournal: create stream %s: %w", cfg.Stream, err)
		}
	}

	publisher, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:       cfg.URL,
		Marshaler: wmnats.GobMarshaler{},
	}, watermill.NewStdLogger(false, false))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsjournal: watermill publisher: %w", err)
	}

	return &Store{cfg: cfg, log: log, conn: conn, js: js, publisher: publisher, afterSeq: -1}, nil
}

func (s *Store) EnableJournaling(ctx context.Context, afterSeq domain.Seq) error {
	s.enabled = true
	s.afterSeq = afterSeq
	s.log.Info("natsjournal: journaling enabled", zap.Int64("afterSeq", int64(afterSeq)))
	return nil
}

// WriteToJournal publishes entry onto the journal subject. It is called
// from the results stage's ResultHandler (cmd/exchange's runPipeline), off
// the R1/ME/R2 hot path, so a synchronous watermill publish here does not
// add latency to those stages.
func (s *Store) WriteToJournal(ctx context.Context, entry persistence.JournalEntry) error {
	if !s.enabled || entry.DSeq <= s.afterSeq {
		return nil
	}
	payload, err := json.Marshal(toWire(entry))
	if err != nil {
		return fmt.Errorf("natsjournal: marshal entry %d: %w", entry.DSeq, err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("dSeq", fmt.Sprintf("%d", entry.DSeq))
	if err := s.publisher.Publish(s.cfg.Subject, msg); err != nil {
		return fmt.Errorf("natsjournal: publish entry %d: %w", entry.DSeq, err)
	}
	return nil
}

// ReadFrom pulls every message recorded after afterSeq from the stream via
// a durable-less JetStream pull consumer, decodes it, and streams it out in
// delivery order. The channel closes once the stream's backlog at call
// time is drained.
func (s *Store) ReadFrom(ctx context.Context, afterSeq domain.Seq) (<-chan persistence.JournalEntry, error) {
	sub, err := s.js.PullSubscribe(s.cfg.Subject, "", natsgo.BindStream(s.cfg.Stream))
	if err != nil {
		return nil, fmt.Errorf("natsjournal: pull subscribe: %w", err)
	}

	out := make(chan persistence.JournalEntry)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			msgs, err := sub.Fetch(64, natsgo.MaxWait(500*time.Millisecond))
			if err != nil {
				if err == natsgo.ErrTimeout {
					return
				}
				s.log.Warn("natsjournal: fetch failed during replay", zap.Error(err))
				return
			}
			if len(msgs) == 0 {
				return
			}
			for _, m := range msgs {
				var w wireEntry
				if err := json.Unmarshal(m.Data, &w); err != nil {
					s.log.Warn("natsjournal: skipping undecodable journal entry", zap.Error(err))
					m.Ack()
					continue
				}
				m.Ack()
				entry := fromWire(w)
				if entry.DSeq <= afterSeq {
					continue
				}
				select {
				case out <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the publisher and NATS connection.
func (s *Store) Close() error {
	if err := s.publisher.Close(); err != nil {
		return err
	}
	s.conn.Close()
	return nil
}
