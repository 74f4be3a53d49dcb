package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/grouparchive/internal/store"
	"go.uber.org/zap"
)

// Reconciler manages replay checkpoints in the sync_state table.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger}
}

// CheckpointKey is the sync_state key holding the next ordinal to deliver
// to channel.
func CheckpointKey(channel string) string {
	return "replay." + channel + ".next_ordinal"
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := r.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value.
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SaveOrdinal records the next ordinal to deliver to channel.
func (r *Reconciler) SaveOrdinal(channel string, next int) error {
	if err := r.UpdateCheckpoint(CheckpointKey(channel), strconv.Itoa(next)); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadOrdinal returns the next ordinal to deliver to channel, or 0 when no
// replay into it has been recorded.
func (r *Reconciler) LoadOrdinal(channel string) (int, error) {
	v, err := r.GetCheckpoint(CheckpointKey(channel))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("checkpoint %q: %w", v, err)
	}
	r.logger.Info("checkpoint loaded", zap.String("channel", channel), zap.Int("next_ordinal", n))
	return n, nil
}
