package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oblik/core/metrics"
	"oblik/core/notify"
	"oblik/core/store"
	"oblik/core/utils"

	"go.uber.org/zap"
)

const (
	auditCreate            = "records.create"
	auditUpdate            = "records.update"
	auditDelete            = "records.delete"
	auditResolution        = "records.resolution.submit"
	auditApprove           = "records.approve"
	auditExtensionRequest  = "records.extension.request"
	auditExtensionReview   = "records.extension.review"
	auditInvestigation     = "records.investigation"
	auditReturnForRevision = "records.return_for_revision"
)

// Actor identifies who performs an operation. Permission checks happen
// before the service is called.
type Actor struct {
	ID   string
	Name string
}

type Deps struct {
	Records  store.RecordsStore
	Roster   store.RosterStore
	Audit    store.AuditStore
	Settings store.SettingsStore
	Notifier notify.Notifier
	Mailer   notify.Mailer
	Metrics  *metrics.Metrics
	Logger   *utils.Logger
}

type Options struct {
	TermDays                int
	ApplicationNumberFormat string
	SequenceRetryMaxElapsed time.Duration
	PublicURL               string
	EmailEnabledDefault     bool
	Now                     func() time.Time
}

type Service struct {
	records  store.RecordsStore
	roster   store.RosterStore
	audits   store.AuditStore
	settings store.SettingsStore
	notifier notify.Notifier
	mailer   notify.Mailer
	metrics  *metrics.Metrics
	logger   *utils.Logger
	opts     Options
	now      func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if opts.TermDays <= 0 {
		opts.TermDays = DefaultTermDays
	}
	if strings.TrimSpace(opts.ApplicationNumberFormat) == "" {
		opts.ApplicationNumberFormat = DefaultApplicationNumberFormat
	}
	if opts.SequenceRetryMaxElapsed <= 0 {
		opts.SequenceRetryMaxElapsed = 5 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = utils.NowUTC
	}
	return &Service{
		records:  deps.Records,
		roster:   deps.Roster,
		audits:   deps.Audit,
		settings: deps.Settings,
		notifier: deps.Notifier,
		mailer:   deps.Mailer,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     opts,
		now:      now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*store.Record, error) {
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return nil, notFound("record", id)
	}
	return rec, nil
}

// Delete removes the record with its officer tags and investigation row.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) (err error) {
	defer s.track("delete", &err)
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.DeleteRecord(ctx, rec.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("record", id)
		}
		return fmt.Errorf("delete record: %w", err)
	}
	s.audit(ctx, actor, auditDelete, rec, map[string]any{"eo_number": rec.EONumber, "record_type": rec.RecordType})
	return nil
}

func (s *Service) nowPtr() *time.Time {
	t := s.now().UTC()
	return &t
}

func (s *Service) track(action string, errp *error) {
	s.metrics.IncTransition(action, errorKind(*errp))
}

func (s *Service) persist(ctx context.Context, rec *store.Record) error {
	if err := s.records.UpdateRecord(ctx, rec); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return notFound("record", rec.ID)
		case errors.Is(err, store.ErrConflict):
			return &ConflictError{Field: "eoNumber", Value: rec.EONumber}
		}
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// ensureOfficers fails with NotFoundError naming every unknown id.
func (s *Service) ensureOfficers(ctx context.Context, ids []string) (map[string]store.Officer, error) {
	wanted := uniqueIDs(ids)
	if len(wanted) == 0 {
		return map[string]store.Officer{}, nil
	}
	found, err := s.roster.FindOfficersByIDs(ctx, wanted)
	if err != nil {
		return nil, fmt.Errorf("load officers: %w", err)
	}
	byID := make(map[string]store.Officer, len(found))
	for _, o := range found {
		byID[o.ID] = o
	}
	var missing []string
	for _, id := range wanted {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, notFound("officer", missing...)
	}
	return byID, nil
}

func (s *Service) ensureUser(ctx context.Context, id *string) error {
	if id == nil {
		return nil
	}
	u, err := s.roster.GetUser(ctx, *id)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return notFound("user", *id)
	}
	return nil
}

func (s *Service) recordLink(rec *store.Record) string {
	return strings.TrimRight(s.opts.PublicURL, "/") + "/records/" + rec.ID
}

func (s *Service) audit(ctx context.Context, actor Actor, action string, rec *store.Record, meta map[string]any) {
	if s.audits == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if actor.Name != "" {
		meta["actor_name"] = actor.Name
	}
	if err := s.audits.Log(ctx, &store.AuditEntry{
		ActorID:    actor.ID,
		Action:     action,
		EntityType: "record",
		EntityID:   rec.ID,
		Metadata:   meta,
	}); err != nil {
		s.metrics.IncSideEffectFailure("audit")
		s.logger.Error("audit failed", zap.String("record_id", rec.ID), zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.notifier == nil || strings.TrimSpace(n.UserID) == "" {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.metrics.IncSideEffectFailure("notify")
		s.logger.Error("notification failed", zap.String("user_id", n.UserID), zap.String("type", n.Type), zap.Error(err))
	}
}

// email sends only when the policy read for this call allows it.
func (s *Service) email(ctx context.Context, policy notify.Policy, userID, subject, text string) {
	if !policy.EmailEnabled || s.mailer == nil || strings.TrimSpace(userID) == "" {
		return
	}
	u, err := s.roster.GetUser(ctx, userID)
	if err != nil || u == nil || strings.TrimSpace(u.Email) == "" || !u.Active {
		return
	}
	if err := s.mailer.Send(ctx, notify.Mail{To: u.Email, Subject: subject, Text: text}); err != nil {
		s.metrics.IncSideEffectFailure("email")
		s.logger.Error("email failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) policy(ctx context.Context) notify.Policy {
	return notify.LoadPolicy(ctx, s.settings, notify.Policy{EmailEnabled: s.opts.EmailEnabledDefault})
}

func (s *Service) notifyAssignment(ctx context.Context, rec *store.Record) {
	if rec.AssignedUserID == nil {
		return
	}
	title := "Призначено виконавця"
	msg := fmt.Sprintf("Вам призначено запис %s.", rec.EONumber)
	if rec.Deadline != nil {
		msg += fmt.Sprintf(" Строк виконання: %s.", utils.FormatDate(*rec.Deadline))
	}
	s.notify(ctx, notify.Notification{
		UserID:   *rec.AssignedUserID,
		Title:    title,
		Message:  msg,
		Type:     notify.TypeAssignment,
		Priority: notify.PriorityNormal,
		Link:     s.recordLink(rec),
	})
	s.email(ctx, s.policy(ctx), *rec.AssignedUserID, title+": "+rec.EONumber, msg+"\n"+s.recordLink(rec))
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameUser(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cleanUserID(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}
