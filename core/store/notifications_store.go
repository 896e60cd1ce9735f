package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Priority  string     `json:"priority"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type NotificationsStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type notificationsStore struct {
	db *DB
}

func NewNotificationsStore(db *DB) NotificationsStore {
	return &notificationsStore{db: db}
}

func (s *notificationsStore) CreateNotification(ctx context.Context, n *Notification) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	if n.Priority == "" {
		n.Priority = "normal"
	}
	n.ID = id.String()
	n.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO notifications(id, user_id, title, message, type, priority, link, created_at) VALUES(?,?,?,?,?,?,?,?)`),
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.Priority, n.Link, n.CreatedAt)
	return err
}

func (s *notificationsStore) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, user_id, title, message, type, priority, link, read_at, created_at
		FROM notifications WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Notification
	for rows.Next() {
		var n Notification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Priority, &n.Link, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ReadAt = timePtr(readAt)
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *notificationsStore) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE notifications SET read_at=? WHERE id=? AND user_id=? AND read_at IS NULL`),
		time.Now().UTC(), id, userID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
