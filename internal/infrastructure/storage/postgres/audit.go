package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"aqualist/internal/core/id"
	"aqualist/internal/domain/audit"
	"aqualist/pkg/logger"
)

// CompressionAlgo specifies the compression algorithm used for payloads.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID             id.ID           `db:"id"`
	TargetKind     string          `db:"target_kind"`
	TargetID       string          `db:"target_id"`
	Action         string          `db:"action"`
	ActorUserID    string          `db:"actor_user_id"`
	Meta           json.RawMessage `db:"meta"`
	MetaCompressed []byte          `db:"meta_compressed"`
	Compression    CompressionAlgo `db:"compression_algo"`
	CreatedAt      time.Time       `db:"created_at"`
}

// Compile-time checks.
var (
	_ audit.Recorder      = (*AuditStore)(nil)
	_ audit.HistoryReader = (*AuditStore)(nil)
)

// AuditStore writes moderation and lifecycle audit entries. Large payloads
// are zstd-compressed before insert.
type AuditStore struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewAuditStore creates an audit store.
func NewAuditStore(txManager *TxManager) (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditStore{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record stores an audit entry. Best-effort: failures are logged, never
// returned, so a broken audit table cannot fail a finished operation.
func (s *AuditStore) Record(ctx context.Context, actorUserID, action, targetKind, targetID string, meta map[string]any) {
	entry := AuditEntry{
		ID:          id.New(),
		TargetKind:  targetKind,
		TargetID:    targetID,
		Action:      action,
		ActorUserID: actorUserID,
		Compression: CompressionNone,
		CreatedAt:   time.Now().UTC(),
	}

	if len(meta) > 0 {
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			logger.Warn(ctx, "audit meta marshal failed", "action", action, "error", err)
		} else if len(metaJSON) > s.compressThreshold {
			entry.MetaCompressed = s.encoder.EncodeAll(metaJSON, nil)
			entry.Compression = CompressionZstd
		} else {
			entry.Meta = metaJSON
		}
	}

	sql := `
		INSERT INTO sys_audit (
			id, target_kind, target_id, action, actor_user_id,
			meta, meta_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		entry.ID, entry.TargetKind, entry.TargetID, entry.Action,
		entry.ActorUserID, entry.Meta, entry.MetaCompressed,
		entry.Compression, entry.CreatedAt,
	)
	if err != nil {
		logger.Warn(ctx, "audit record failed",
			"action", action, "target_id", targetID, "error", err)
	}
}

// History retrieves audit entries for a target, newest first.
func (s *AuditStore) History(ctx context.Context, targetKind, targetID string, limit int) ([]audit.Entry, error) {
	sql := `
		SELECT id, target_kind, target_id, action, actor_user_id,
			   meta, meta_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE target_kind = $1 AND target_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, targetKind, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.TargetKind, &e.TargetID, &e.Action, &e.ActorUserID,
			&e.Meta, &e.MetaCompressed, &e.Compression, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.Compression == CompressionZstd && len(e.MetaCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.MetaCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress meta: %w", err)
			}
			e.Meta = decompressed
		}

		entries = append(entries, audit.Entry{
			ID:          e.ID.String(),
			Action:      e.Action,
			ActorUserID: e.ActorUserID,
			Meta:        e.Meta,
			CreatedAt:   e.CreatedAt,
		})
	}

	return entries, rows.Err()
}
