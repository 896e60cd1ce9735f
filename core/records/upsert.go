package records

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"oblik/core/store"

	"github.com/cenkalti/backoff/v4"
)

const DefaultApplicationNumberFormat = "APP-{year}-{seq:04}"

var seqToken = regexp.MustCompile(`\{seq(?::(\d+))?\}`)

// RecordInput carries the editable fields of a record. On update every field
// replaces the stored value; an empty EONumber, RecordType or zero EODate
// keeps the stored one.
type RecordInput struct {
	EONumber       string
	RecordType     string
	EODate         time.Time
	Deadline       *time.Time
	Description    string
	Applicant      string
	Address        string
	ConcernsBPP    bool
	OfficerIDs     []string
	AssignedUserID *string
}

// Save creates a record when id is empty and updates it otherwise.
func (s *Service) Save(ctx context.Context, actor Actor, id string, in RecordInput) (*store.Record, error) {
	if strings.TrimSpace(id) == "" {
		return s.Create(ctx, actor, in)
	}
	return s.Update(ctx, actor, id, in)
}

func (s *Service) Create(ctx context.Context, actor Actor, in RecordInput) (rec *store.Record, err error) {
	defer s.track("create", &err)
	recordType := strings.ToUpper(strings.TrimSpace(in.RecordType))
	if !IsRecordType(recordType) {
		return nil, invalid("recordType", "unknown")
	}
	if in.EODate.IsZero() {
		return nil, invalid("eoDate", "required")
	}
	number := strings.TrimSpace(in.EONumber)
	if number == "" && recordType != TypeApplication {
		return nil, invalid("eoNumber", "required")
	}
	assigned := cleanUserID(in.AssignedUserID)
	if _, err := s.ensureOfficers(ctx, in.OfficerIDs); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, assigned); err != nil {
		return nil, err
	}
	eoDate := dateOf(in.EODate)
	rec = &store.Record{
		EONumber:       number,
		RecordType:     recordType,
		EODate:         eoDate,
		Description:    strings.TrimSpace(in.Description),
		Applicant:      strings.TrimSpace(in.Applicant),
		Address:        strings.TrimSpace(in.Address),
		Status:         StatusPending,
		ConcernsBPP:    in.ConcernsBPP,
		OfficerIDs:     uniqueIDs(in.OfficerIDs),
		AssignedUserID: assigned,
		CreatedBy:      actor.ID,
		UpdatedBy:      actor.ID,
	}
	if in.Deadline != nil {
		d := dateOf(*in.Deadline)
		rec.Deadline = &d
	} else {
		d := ComputeDeadline(eoDate, s.opts.TermDays)
		rec.Deadline = &d
	}
	if recordType == TypeServiceInvestigation {
		rec.Investigation.Stage = StageReportReview
	}
	if number == "" {
		err = s.createNumbered(ctx, rec)
	} else {
		err = s.createWithNumber(ctx, rec)
	}
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, auditCreate, rec, map[string]any{"eo_number": rec.EONumber, "record_type": rec.RecordType})
	s.notifyAssignment(ctx, rec)
	return rec, nil
}

func (s *Service) createWithNumber(ctx context.Context, rec *store.Record) error {
	existing, err := s.records.GetRecordByNumber(ctx, rec.EONumber)
	if err != nil {
		return fmt.Errorf("check number: %w", err)
	}
	if existing != nil {
		return &ConflictError{Field: "eoNumber", Value: rec.EONumber}
	}
	if err := s.records.CreateRecord(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return &ConflictError{Field: "eoNumber", Value: rec.EONumber}
		}
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// createNumbered allocates the next APPLICATION number and inserts the
// record, allocating again when a concurrent insert took the number.
func (s *Service) createNumbered(ctx context.Context, rec *store.Record) error {
	op := func() error {
		number, err := s.allocateNumber(ctx, rec.EODate.Year())
		if err != nil {
			return backoff.Permanent(err)
		}
		rec.EONumber = number
		err = s.records.CreateRecord(ctx, rec)
		if errors.Is(err, store.ErrConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create record: %w", err))
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = s.opts.SequenceRetryMaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return &ConflictError{Field: "eoNumber", Value: rec.EONumber}
		}
		return err
	}
	return nil
}

func (s *Service) allocateNumber(ctx context.Context, year int) (string, error) {
	prefix := numberPrefix(s.opts.ApplicationNumberFormat, year)
	existing, err := s.records.ListNumbersByPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list numbers: %w", err)
	}
	var maxSeq int64
	for _, n := range existing {
		if seq, ok := parseSequence(s.opts.ApplicationNumberFormat, year, n); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	seq, err := s.records.NextSequence(ctx, prefix, maxSeq+1)
	if err != nil {
		return "", fmt.Errorf("next sequence: %w", err)
	}
	return buildNumber(s.opts.ApplicationNumberFormat, year, seq), nil
}

func (s *Service) Update(ctx context.Context, actor Actor, id string, in RecordInput) (rec *store.Record, err error) {
	defer s.track("update", &err)
	rec, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t := strings.ToUpper(strings.TrimSpace(in.RecordType)); t != "" && t != rec.RecordType {
		return nil, invalid("recordType", "immutable")
	}
	if number := strings.TrimSpace(in.EONumber); number != "" && number != rec.EONumber {
		if rec.RecordType != TypeApplication {
			return nil, invalid("eoNumber", "immutable")
		}
		existing, err := s.records.GetRecordByNumber(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("check number: %w", err)
		}
		if existing != nil && existing.ID != rec.ID {
			return nil, &ConflictError{Field: "eoNumber", Value: number}
		}
		rec.EONumber = number
	}
	assigned := cleanUserID(in.AssignedUserID)
	if _, err := s.ensureOfficers(ctx, in.OfficerIDs); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, assigned); err != nil {
		return nil, err
	}
	eoDateChanged := false
	if !in.EODate.IsZero() {
		d := dateOf(in.EODate)
		eoDateChanged = !d.Equal(rec.EODate)
		rec.EODate = d
	}
	switch {
	case in.Deadline != nil:
		d := dateOf(*in.Deadline)
		rec.Deadline = &d
	case eoDateChanged && rec.Investigation.OrderDate == nil:
		d := ComputeDeadline(rec.EODate, s.opts.TermDays)
		rec.Deadline = &d
	}
	assignmentChanged := !sameUser(rec.AssignedUserID, assigned)
	rec.Description = strings.TrimSpace(in.Description)
	rec.Applicant = strings.TrimSpace(in.Applicant)
	rec.Address = strings.TrimSpace(in.Address)
	rec.ConcernsBPP = in.ConcernsBPP
	rec.OfficerIDs = uniqueIDs(in.OfficerIDs)
	rec.AssignedUserID = assigned
	rec.UpdatedBy = actor.ID
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, auditUpdate, rec, map[string]any{"assignment_changed": assignmentChanged})
	if assignmentChanged {
		s.notifyAssignment(ctx, rec)
	}
	return rec, nil
}

func buildNumber(format string, year int, seq int64) string {
	out := strings.ReplaceAll(format, "{year}", strconv.Itoa(year))
	return seqToken.ReplaceAllStringFunc(out, func(token string) string {
		m := seqToken.FindStringSubmatch(token)
		if len(m) == 2 && m[1] != "" {
			if width, err := strconv.Atoi(m[1]); err == nil && width > 0 {
				return fmt.Sprintf("%0*d", width, seq)
			}
		}
		return strconv.FormatInt(seq, 10)
	})
}

// numberPrefix is the formatted text before the sequence token.
func numberPrefix(format string, year int) string {
	loc := seqToken.FindStringIndex(format)
	if loc == nil {
		return strings.ReplaceAll(format, "{year}", strconv.Itoa(year))
	}
	return strings.ReplaceAll(format[:loc[0]], "{year}", strconv.Itoa(year))
}

func parseSequence(format string, year int, number string) (int64, bool) {
	loc := seqToken.FindStringIndex(format)
	if loc == nil {
		return 0, false
	}
	prefix := strings.ReplaceAll(format[:loc[0]], "{year}", strconv.Itoa(year))
	suffix := strings.ReplaceAll(format[loc[1]:], "{year}", strconv.Itoa(year))
	if !strings.HasPrefix(number, prefix) || !strings.HasSuffix(number, suffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(number, prefix), suffix)
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
