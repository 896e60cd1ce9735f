package reminders

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"oblik/config"
	"oblik/core/metrics"
	"oblik/core/notify"
	"oblik/core/store"
	"oblik/core/utils"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const processedStatus = "PROCESSED"

type Deps struct {
	Records  store.RecordsStore
	Roster   store.RosterStore
	Settings store.SettingsStore
	Notifier notify.Notifier
	Mailer   notify.Mailer
	Metrics  *metrics.Metrics
	Logger   *utils.Logger
}

// Scheduler sends deadline reminders for open, assigned records on a cron
// schedule.
type Scheduler struct {
	cfg       config.RemindersConfig
	deps      Deps
	publicURL string
	emailDef  bool
	loc       *time.Location

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg config.RemindersConfig, notifyCfg config.NotificationsConfig, deps Deps) *Scheduler {
	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil || strings.TrimSpace(cfg.Timezone) == "" {
		loc = time.UTC
	}
	return &Scheduler{
		cfg:       cfg,
		deps:      deps,
		publicURL: notifyCfg.PublicURL,
		emailDef:  notifyCfg.EmailEnabledDefault,
		loc:       loc,
	}
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.cfg.CronSpec, func() {
		if _, err := s.RunOnce(runCtx, time.Now()); err != nil {
			s.deps.Logger.Error("reminder sweep failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("reminders cron %q: %w", s.cfg.CronSpec, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	return nil
}

func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c, cancel, wasRunning := s.cron, s.cancel, s.running
	s.cron, s.cancel, s.running = nil, nil, false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce notifies assignees of records due within the configured window and
// returns how many reminders were sent.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveReminderSweep(time.Since(started)) }()

	daysBefore := s.cfg.DaysBefore
	policy := notify.Policy{EmailEnabled: s.emailDef}
	if s.deps.Settings != nil {
		if settings, err := s.deps.Settings.GetSettings(ctx); err == nil && settings != nil {
			policy.EmailEnabled = settings.EmailNotificationsEnabled
			if settings.ReminderDaysBefore > 0 {
				daysBefore = settings.ReminderDaysBefore
			}
		}
	}
	if daysBefore < 0 {
		daysBefore = 0
	}
	y, m, d := now.In(s.loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, daysBefore)

	due, err := s.deps.Records.ListDueRecords(ctx, store.DueFilter{DueOnOrBefore: cutoff, ExcludeStatus: processedStatus})
	if err != nil {
		return 0, fmt.Errorf("list due records: %w", err)
	}
	sent := 0
	for i := range due {
		rec := &due[i]
		if rec.AssignedUserID == nil || rec.Deadline == nil {
			continue
		}
		n := buildReminder(rec, today, s.publicURL)
		if err := s.deps.Notifier.Notify(ctx, n); err != nil {
			s.deps.Metrics.IncSideEffectFailure("notify")
			s.deps.Logger.Error("reminder notification failed", zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		sent++
		s.sendEmail(ctx, policy, *rec.AssignedUserID, n)
	}
	if sent > 0 {
		s.deps.Logger.Printf("deadline reminders sent: %d", sent)
	}
	return sent, nil
}

func (s *Scheduler) sendEmail(ctx context.Context, policy notify.Policy, userID string, n notify.Notification) {
	if !policy.EmailEnabled || s.deps.Mailer == nil || s.deps.Roster == nil {
		return
	}
	u, err := s.deps.Roster.GetUser(ctx, userID)
	if err != nil || u == nil || !u.Active || strings.TrimSpace(u.Email) == "" {
		return
	}
	if err := s.deps.Mailer.Send(ctx, notify.Mail{To: u.Email, Subject: n.Title, Text: n.Message + "\n" + n.Link}); err != nil {
		s.deps.Metrics.IncSideEffectFailure("email")
		s.deps.Logger.Error("reminder email failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func buildReminder(rec *store.Record, today time.Time, publicURL string) notify.Notification {
	deadline := *rec.Deadline
	n := notify.Notification{
		UserID:   *rec.AssignedUserID,
		Type:     notify.TypeDeadline,
		Priority: notify.PriorityNormal,
		Link:     strings.TrimRight(publicURL, "/") + "/records/" + rec.ID,
	}
	switch {
	case deadline.Before(today):
		n.Priority = notify.PriorityHigh
		n.Title = "Строк виконання минув"
		n.Message = fmt.Sprintf("Строк виконання запису %s минув %s.", rec.EONumber, utils.FormatDate(deadline))
	case deadline.Equal(today):
		n.Title = "Строк виконання спливає сьогодні"
		n.Message = fmt.Sprintf("Строк виконання запису %s спливає сьогодні (%s).", rec.EONumber, utils.FormatDate(deadline))
	default:
		days := int(deadline.Sub(today).Hours() / 24)
		n.Title = "Наближається строк виконання"
		n.Message = fmt.Sprintf("До строку виконання запису %s залишилось днів: %d (%s).", rec.EONumber, days, utils.FormatDate(deadline))
	}
	return n
}
