package notify

import (
	"context"
	"strings"

	"oblik/core/store"
	"oblik/core/utils"

	"go.uber.org/zap"
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

const (
	TypeAssignment      = "RECORD_ASSIGNED"
	TypeExtensionReview = "EXTENSION_REVIEWED"
	TypeRevision        = "RECORD_RETURNED"
	TypeDeadline        = "DEADLINE_REMINDER"
)

type Notification struct {
	UserID   string
	Title    string
	Message  string
	Type     string
	Priority string
	Link     string
}

// Notifier delivers in-app notifications. Callers treat every error as
// non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Policy is read once per operation from app settings and decides which
// optional sinks may fire.
type Policy struct {
	EmailEnabled bool
}

// LoadPolicy reads the settings row, falling back to fallback when the store
// is unavailable.
func LoadPolicy(ctx context.Context, settings store.SettingsStore, fallback Policy) Policy {
	if settings == nil {
		return fallback
	}
	s, err := settings.GetSettings(ctx)
	if err != nil || s == nil {
		return fallback
	}
	return Policy{EmailEnabled: s.EmailNotificationsEnabled}
}

// StoreNotifier persists notifications and forwards high-priority ones to the
// escalation channel when one is configured.
type StoreNotifier struct {
	store     store.NotificationsStore
	escalator Escalator
	logger    *utils.Logger
}

func NewStoreNotifier(st store.NotificationsStore, escalator Escalator, logger *utils.Logger) *StoreNotifier {
	return &StoreNotifier{store: st, escalator: escalator, logger: logger}
}

func (n *StoreNotifier) Notify(ctx context.Context, msg Notification) error {
	if strings.TrimSpace(msg.UserID) == "" {
		return nil
	}
	priority := msg.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if err := n.store.CreateNotification(ctx, &store.Notification{
		UserID:   msg.UserID,
		Title:    msg.Title,
		Message:  msg.Message,
		Type:     msg.Type,
		Priority: priority,
		Link:     msg.Link,
	}); err != nil {
		return err
	}
	if priority == PriorityHigh && n.escalator != nil {
		if err := n.escalator.Escalate(ctx, msg); err != nil {
			n.logger.Error("notification escalation failed", zap.String("user_id", msg.UserID), zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return nil
}
