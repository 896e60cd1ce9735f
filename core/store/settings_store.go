package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type AppSettings struct {
	EmailNotificationsEnabled bool      `json:"email_notifications_enabled"`
	ReminderDaysBefore        int       `json:"reminder_days_before"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (*AppSettings, error)
	UpdateSettings(ctx context.Context, settings *AppSettings) error
}

// settingsStore keeps a single row with id=1; defaults seed it on first read.
type settingsStore struct {
	db       *DB
	defaults AppSettings
}

func NewSettingsStore(db *DB, defaults AppSettings) SettingsStore {
	if defaults.ReminderDaysBefore <= 0 {
		defaults.ReminderDaysBefore = 2
	}
	return &settingsStore{db: db, defaults: defaults}
}

func (s *settingsStore) GetSettings(ctx context.Context) (*AppSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT email_notifications_enabled, reminder_days_before, updated_at FROM app_settings WHERE id=1`)
	var settings AppSettings
	var emailEnabled int
	if err := row.Scan(&emailEnabled, &settings.ReminderDaysBefore, &settings.UpdatedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		settings = s.defaults
		if err := s.UpdateSettings(ctx, &settings); err != nil {
			return nil, err
		}
		return &settings, nil
	}
	settings.EmailNotificationsEnabled = emailEnabled == 1
	return &settings, nil
}

func (s *settingsStore) UpdateSettings(ctx context.Context, settings *AppSettings) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO app_settings(id, email_notifications_enabled, reminder_days_before, updated_at)
		VALUES(1,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			email_notifications_enabled=excluded.email_notifications_enabled,
			reminder_days_before=excluded.reminder_days_before,
			updated_at=excluded.updated_at`),
		boolToInt(settings.EmailNotificationsEnabled), settings.ReminderDaysBefore, now); err != nil {
		return err
	}
	settings.UpdatedAt = now
	return nil
}
