package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

type AuditEntry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type AuditStore interface {
	Log(ctx context.Context, entry *AuditEntry) error
	ListForEntity(ctx context.Context, entityType, entityID string) ([]AuditEntry, error)
}

type auditStore struct {
	db *DB
}

func NewAuditStore(db *DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Log(ctx context.Context, entry *AuditEntry) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	entry.ID = id.String()
	entry.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO audit_log(id, actor_id, action, entity_type, entity_id, metadata, created_at) VALUES(?,?,?,?,?,?,?)`),
		entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, string(raw), entry.CreatedAt)
	return err
}

func (s *auditStore) ListForEntity(ctx context.Context, entityType, entityID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, actor_id, action, entity_type, entity_id, metadata, created_at
		FROM audit_log WHERE entity_type=? AND entity_id=? ORDER BY created_at ASC, id ASC`), entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var meta string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
