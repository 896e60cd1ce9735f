package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type Officer struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	BadgeNumber string    `json:"badge_number"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// RosterStore gives read access to officers and users. Records only reference
// them; nothing in the records workflow writes here.
type RosterStore interface {
	CreateOfficer(ctx context.Context, o *Officer) error
	FindOfficersByIDs(ctx context.Context, ids []string) ([]Officer, error)
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
}

type rosterStore struct {
	db *DB
}

func NewRosterStore(db *DB) RosterStore {
	return &rosterStore{db: db}
}

func (s *rosterStore) CreateOfficer(ctx context.Context, o *Officer) error {
	if strings.TrimSpace(o.ID) == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		o.ID = id.String()
	}
	o.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO officers(id, first_name, last_name, badge_number, created_at) VALUES(?,?,?,?,?)`),
		o.ID, strings.TrimSpace(o.FirstName), strings.TrimSpace(o.LastName), strings.TrimSpace(o.BadgeNumber), o.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// FindOfficersByIDs returns the officers that exist among ids; missing ids are
// silently absent from the result.
func (s *rosterStore) FindOfficersByIDs(ctx context.Context, ids []string) ([]Officer, error) {
	clean := make([]any, 0, len(ids))
	seen := map[string]struct{}{}
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}
	if len(clean) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(clean)), ",")
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, first_name, last_name, badge_number, created_at
		FROM officers WHERE id IN (`+placeholders+`) ORDER BY last_name, first_name`), clean...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Officer
	for rows.Next() {
		var o Officer
		if err := rows.Scan(&o.ID, &o.FirstName, &o.LastName, &o.BadgeNumber, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (s *rosterStore) CreateUser(ctx context.Context, u *User) error {
	if strings.TrimSpace(u.ID) == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		u.ID = id.String()
	}
	u.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users(id, username, full_name, email, active, created_at) VALUES(?,?,?,?,?,?)`),
		u.ID, strings.ToLower(strings.TrimSpace(u.Username)), strings.TrimSpace(u.FullName), strings.TrimSpace(u.Email), boolToInt(u.Active), u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *rosterStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT id, username, full_name, email, active, created_at FROM users WHERE id=?`), id)
	return scanUser(row)
}

func (s *rosterStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT id, username, full_name, email, active, created_at FROM users WHERE username=?`),
		strings.ToLower(strings.TrimSpace(username)))
	return scanUser(row)
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &active, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Active = active == 1
	return &u, nil
}
