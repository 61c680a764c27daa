// Package pgsnapshot implements persistence.SnapshotStore on Postgres via
// gorm, one concrete collaborator-side backend for §6's persistence
// contract.
package pgsnapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/persistence"
)

// snapshotRow is the gorm model backing the snapshots table.
type snapshotRow struct {
	SnapshotID  string `gorm:"primaryKey"`
	Seq         int64  `gorm:"index"`
	TimestampNs int64
	ModuleType  uint8 `gorm:"index"`
	InstanceID  int32 `gorm:"index"`
	Version     string
	Payload     []byte
	CreatedAt   time.Time
}

func (snapshotRow) TableName() string { return "exchange_snapshots" }

// Store is a persistence.SnapshotStore backed by a Postgres table.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to dsn and migrates the snapshots table.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("pgsnapshot: open: %w", err)
	}
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("pgsnapshot: migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// New wraps an already-open, already-migrated *gorm.DB, for callers that
// manage the connection pool themselves (e.g. shared across stores).
func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) StoreData(ctx context.Context, point persistence.SnapshotPoint, payload []byte) (bool, error) {
	if point.Version == "" {
		point.Version = persistence.SnapshotFormatVersion.String()
	}
	row := snapshotRow{
		SnapshotID:  point.SnapshotID,
		Seq:         int64(point.Seq),
		TimestampNs: point.TimestampNs,
		ModuleType:  uint8(point.ModuleType),
		InstanceID:  point.InstanceID,
		Version:     point.Version,
		Payload:     payload,
	}

	var existingSeq int64
	err := s.db.WithContext(ctx).Model(&snapshotRow{}).
		Where("module_type = ? AND instance_id = ?", row.ModuleType, row.InstanceID).
		Order("seq DESC").Limit(1).Pluck("seq", &existingSeq).Error
	if err == nil && existingSeq >= row.Seq {
		s.log.Debug("pgsnapshot: declined stale snapshot write",
			zap.Int64("existingSeq", existingSeq), zap.Int64("seq", row.Seq))
		return false, nil
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return false, fmt.Errorf("pgsnapshot: store %s: %w", point.SnapshotID, err)
	}
	return true, nil
}

func (s *Store) LoadData(ctx context.Context, snapshotID string, moduleType persistence.ModuleType, instanceID int32) (persistence.SnapshotPoint, []byte, bool, error) {
	q := s.db.WithContext(ctx).
		Where("module_type = ? AND instance_id = ?", uint8(moduleType), instanceID)
	if snapshotID != "" {
		q = q.Where("snapshot_id = ?", snapshotID)
	}

	var row snapshotRow
	err := q.Order("seq DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.SnapshotPoint{}, nil, false, nil
	}
	if err != nil {
		return persistence.SnapshotPoint{}, nil, false, fmt.Errorf("pgsnapshot: load %s/%d: %w", moduleType, instanceID, err)
	}

	point := rowToPoint(row)
	compatible, err := point.CompatibleWith(persistence.SnapshotFormatVersion)
	if err != nil {
		return persistence.SnapshotPoint{}, nil, false, err
	}
	if !compatible {
		return persistence.SnapshotPoint{}, nil, false, fmt.Errorf(
			"pgsnapshot: snapshot %s version %s incompatible with reader %s",
			point.SnapshotID, point.Version, persistence.SnapshotFormatVersion)
	}
	return point, row.Payload, true, nil
}

func (s *Store) FindAllSnapshotPoints(ctx context.Context, moduleType persistence.ModuleType, instanceID int32) ([]persistence.SnapshotPoint, error) {
	var rows []snapshotRow
	err := s.db.WithContext(ctx).
		Where("module_type = ? AND instance_id = ?", uint8(moduleType), instanceID).
		Order("seq DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgsnapshot: find points for %s/%d: %w", moduleType, instanceID, err)
	}

	points := make([]persistence.SnapshotPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, rowToPoint(row))
	}
	return points, nil
}

func rowToPoint(row snapshotRow) persistence.SnapshotPoint {
	return persistence.SnapshotPoint{
		SnapshotID:  row.SnapshotID,
		Seq:         domain.Seq(row.Seq),
		TimestampNs: row.TimestampNs,
		ModuleType:  persistence.ModuleType(row.ModuleType),
		InstanceID:  row.InstanceID,
		Version:     row.Version,
	}
}
