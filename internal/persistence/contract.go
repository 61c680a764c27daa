// Package persistence defines the collaborator-side contract the core
// depends on for snapshotting and journaling (§6 "Persistence contract").
// The core itself only ever imports this package's interfaces; concrete
// backends live in the pgsnapshot and natsjournal subpackages.
package persistence

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

// ModuleType names the two state machines the pipeline snapshots
// independently (§6): the risk shard and a matching-engine router shard.
type ModuleType uint8

const (
	ModuleRiskEngine ModuleType = iota
	ModuleMatchingEngineRouter
)

func (m ModuleType) String() string {
	if m == ModuleMatchingEngineRouter {
		return "MATCHING_ENGINE_ROUTER"
	}
	return "RISK_ENGINE"
}

// SnapshotFormatVersion is the format this build writes and the minimum a
// loaded snapshot must satisfy; a snapshot from an incompatible major
// version is rejected rather than partially decoded (§6).
var SnapshotFormatVersion = semver.MustParse("1.0.0")

// SnapshotPoint identifies one stored snapshot (§6 "FindAllSnapshotPoints").
type SnapshotPoint struct {
	SnapshotID  string
	Seq         domain.Seq
	TimestampNs int64
	ModuleType  ModuleType
	InstanceID  int32
	Version     string
}

// CompatibleWith reports whether p's format version can be loaded by a
// reader built against SnapshotFormatVersion (major version match).
func (p SnapshotPoint) CompatibleWith(reader *semver.Version) (bool, error) {
	stored, err := semver.NewVersion(p.Version)
	if err != nil {
		return false, fmt.Errorf("persistence: snapshot %s has unparsable version %q: %w", p.SnapshotID, p.Version, err)
	}
	return stored.Major() == reader.Major(), nil
}

// NewSnapshotID mints a fresh identifier for a StoreData call, the way a
// producer mints a batch id before writing (§6 DOMAIN STACK: uuid used for
// snapshot/journal batch identifiers).
func NewSnapshotID() string {
	return uuid.NewString()
}

// SnapshotStore is the collaborator's read/write surface for point-in-time
// module state (§6 "StoreData"/"LoadData"/"FindAllSnapshotPoints").
type SnapshotStore interface {
	// StoreData persists payload (the module's own serialized state) under
	// point, returning false (not an error) if the store declined the
	// write, e.g. a stale seq for the same snapshotId/moduleType/instanceId.
	StoreData(ctx context.Context, point SnapshotPoint, payload []byte) (bool, error)

	// LoadData returns the payload stored for moduleType/instanceId under
	// snapshotId ("" selects the one with the highest seq), and false if
	// none exists.
	LoadData(ctx context.Context, snapshotID string, moduleType ModuleType, instanceID int32) (SnapshotPoint, []byte, bool, error)

	// FindAllSnapshotPoints enumerates every point the store holds, newest
	// first, for a cold-start replay planner to pick from.
	FindAllSnapshotPoints(ctx context.Context, moduleType ModuleType, instanceID int32) ([]SnapshotPoint, error)
}

// JournalEntry is one durable record of WriteToJournal (§6): the command
// that was admitted to the pipeline at sequence dSeq, and whether it closed
// a group (endOfBatch), the unit a downstream replay consumer resumes on.
type JournalEntry struct {
	Cmd        *domain.OrderCommand
	DSeq       domain.Seq
	EndOfBatch bool
}

// JournalStore is the collaborator's append-only log of admitted commands
// (§6 "WriteToJournal"/"EnableJournaling").
type JournalStore interface {
	// WriteToJournal appends entry. Implementations must not block the
	// caller's hot path; the natsjournal backend publishes synchronously
	// and is called from the results stage, off the R1/ME/R2 stages.
	WriteToJournal(ctx context.Context, entry JournalEntry) error

	// EnableJournaling turns journaling on starting strictly after afterSeq,
	// the sequence the most recent snapshot already covers.
	EnableJournaling(ctx context.Context, afterSeq domain.Seq) error

	// ReadFrom streams every entry recorded strictly after afterSeq, in
	// order, closing the channel once the backlog known at call time is
	// exhausted. It backs ReplayJournalFull's journal-tail replay.
	ReadFrom(ctx context.Context, afterSeq domain.Seq) (<-chan JournalEntry, error)
}

// ReplayMode mirrors the three bootstrap choices of §6's
// initialStateConfiguration knob, kept local to this package so it has no
// dependency on internal/config.
type ReplayMode uint8

const (
	ReplayCleanStart ReplayMode = iota
	ReplayFromSnapshotOnly
	ReplayLastKnownFromJournal
)

// ReplayHandler is fed the snapshot payload (if any) and then every journal
// entry a ReplayJournalFull pass reconstructs, in order, so the caller can
// restore module state and re-run admitted commands through the same code
// path a live command would take.
type ReplayHandler interface {
	ApplySnapshot(payload []byte) error
	Apply(entry JournalEntry)
}

// Processor is the full §6 persistence contract: a SnapshotStore and
// JournalStore pair plus the replay orchestration that composes them. The
// concrete Processor built by cmd/exchange pairs a pgsnapshot.Store with a
// natsjournal.Store.
type Processor interface {
	SnapshotStore
	JournalStore

	// ReplayJournalFull reconstructs moduleType/instanceId's state per
	// mode: ReplayCleanStart does nothing; ReplayFromSnapshotOnly loads the
	// latest compatible snapshot only; ReplayLastKnownFromJournal loads
	// that snapshot and then replays every journal entry recorded after
	// its seq, in order, into handler (§6).
	ReplayJournalFull(ctx context.Context, mode ReplayMode, moduleType ModuleType, instanceID int32, handler ReplayHandler) error
}
