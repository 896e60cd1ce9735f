package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type Record struct {
	ID              string        `json:"id"`
	EONumber        string        `json:"eo_number"`
	RecordType      string        `json:"record_type"`
	EODate          time.Time     `json:"eo_date"`
	Deadline        *time.Time    `json:"deadline,omitempty"`
	Description     string        `json:"description,omitempty"`
	Applicant       string        `json:"applicant,omitempty"`
	Address         string        `json:"address,omitempty"`
	Status          string        `json:"status"`
	ProcessedAt     *time.Time    `json:"processed_at,omitempty"`
	Resolution      string        `json:"resolution,omitempty"`
	ResolutionDate  *time.Time    `json:"resolution_date,omitempty"`
	ConcernsBPP     bool          `json:"concerns_bpp"`
	OfficerIDs      []string      `json:"officer_ids,omitempty"`
	AssignedUserID  *string       `json:"assigned_user_id,omitempty"`
	ExtensionStatus string        `json:"extension_status,omitempty"`
	ExtensionReason string        `json:"extension_reason,omitempty"`
	Investigation   Investigation `json:"investigation"`
	CreatedBy       string        `json:"created_by"`
	UpdatedBy       string        `json:"updated_by"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Investigation holds the service-investigation columns. Stage is empty for
// every other record type.
type Investigation struct {
	Stage                string            `json:"stage,omitempty"`
	ReviewResult         string            `json:"review_result,omitempty"`
	InitiatedAt          *time.Time        `json:"initiated_at,omitempty"`
	OrderNumber          string            `json:"order_number,omitempty"`
	OrderDate            *time.Time        `json:"order_date,omitempty"`
	OrderAssignedAt      *time.Time        `json:"order_assigned_at,omitempty"`
	FinalResult          string            `json:"final_result,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	ConclusionApprovedAt *time.Time        `json:"conclusion_approved_at,omitempty"`
	PenaltyItems         []PenaltyDecision `json:"penalty_items,omitempty"`
	PenaltyByArticle13   bool              `json:"penalty_by_article13"`
	PenaltyOrderNumber   string            `json:"penalty_order_number,omitempty"`
	PenaltyOrderDate     *time.Time        `json:"penalty_order_date,omitempty"`

	// Mirrors of PenaltyItems[0], rewritten on every save.
	PenaltyOfficerID    string `json:"penalty_officer_id,omitempty"`
	PenaltyType         string `json:"penalty_type,omitempty"`
	PenaltyDecisionType string `json:"penalty_decision_type,omitempty"`
	PenaltyOther        string `json:"penalty_other,omitempty"`
}

type PenaltyDecision struct {
	OfficerID    string `json:"officerId"`
	DecisionType string `json:"decisionType"`
	PenaltyType  string `json:"penaltyType"`
	PenaltyOther string `json:"penaltyOther,omitempty"`
}

type DueFilter struct {
	DueOnOrBefore time.Time
	ExcludeStatus string
	Limit         int
}

type RecordsStore interface {
	CreateRecord(ctx context.Context, rec *Record) error
	UpdateRecord(ctx context.Context, rec *Record) error
	DeleteRecord(ctx context.Context, id string) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	GetRecordByNumber(ctx context.Context, number string) (*Record, error)
	ListNumbersByPrefix(ctx context.Context, prefix string) ([]string, error)
	NextSequence(ctx context.Context, prefix string, floor int64) (int64, error)
	ListDueRecords(ctx context.Context, filter DueFilter) ([]Record, error)
}

type recordsStore struct {
	db *DB
}

func NewRecordsStore(db *DB) RecordsStore {
	return &recordsStore{db: db}
}

const recordColumns = `r.id, r.eo_number, r.record_type, r.eo_date, r.deadline, r.description, r.applicant, r.address, r.status, r.processed_at, r.resolution, r.resolution_date, r.concerns_bpp, r.assigned_user_id, r.extension_status, r.extension_reason, r.created_by, r.updated_by, r.created_at, r.updated_at,
	i.stage, i.review_result, i.initiated_at, i.order_number, i.order_date, i.order_assigned_at, i.final_result, i.completed_at, i.conclusion_approved_at, i.penalty_items, i.penalty_by_article13, i.penalty_order_number, i.penalty_order_date, i.penalty_officer_id, i.penalty_type, i.penalty_decision_type, i.penalty_other`

const recordFrom = ` FROM records r LEFT JOIN record_investigations i ON i.record_id = r.id`

func (s *recordsStore) CreateRecord(ctx context.Context, rec *Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		rec.ID = id.String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO records(id, eo_number, record_type, eo_date, deadline, description, applicant, address, status, processed_at, resolution, resolution_date, concerns_bpp, assigned_user_id, extension_status, extension_reason, created_by, updated_by, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		rec.ID, rec.EONumber, rec.RecordType, rec.EODate.UTC(), nullableTime(rec.Deadline), rec.Description, rec.Applicant, rec.Address, rec.Status,
		nullableTime(rec.ProcessedAt), rec.Resolution, nullableTime(rec.ResolutionDate), boolToInt(rec.ConcernsBPP), nullableStringPtr(rec.AssignedUserID),
		nullableString(rec.ExtensionStatus), rec.ExtensionReason, rec.CreatedBy, rec.UpdatedBy, rec.CreatedAt, rec.UpdatedAt); err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if err := s.saveInvestigationTx(ctx, tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	if err := s.replaceOfficersTx(ctx, tx, rec.ID, rec.OfficerIDs); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *recordsStore) UpdateRecord(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.db.Rebind(`
		UPDATE records SET eo_number=?, eo_date=?, deadline=?, description=?, applicant=?, address=?, status=?, processed_at=?, resolution=?, resolution_date=?, concerns_bpp=?, assigned_user_id=?, extension_status=?, extension_reason=?, updated_by=?, updated_at=?
		WHERE id=?`),
		rec.EONumber, rec.EODate.UTC(), nullableTime(rec.Deadline), rec.Description, rec.Applicant, rec.Address, rec.Status, nullableTime(rec.ProcessedAt),
		rec.Resolution, nullableTime(rec.ResolutionDate), boolToInt(rec.ConcernsBPP), nullableStringPtr(rec.AssignedUserID), nullableString(rec.ExtensionStatus),
		rec.ExtensionReason, rec.UpdatedBy, now, rec.ID)
	if err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	if err := s.saveInvestigationTx(ctx, tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	if err := s.replaceOfficersTx(ctx, tx, rec.ID, rec.OfficerIDs); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	rec.UpdatedAt = now
	return nil
}

// DeleteRecord removes dependent rows and the record in one transaction.
func (s *recordsStore) DeleteRecord(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM record_officers WHERE record_id=?`,
		`DELETE FROM record_investigations WHERE record_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(stmt), id); err != nil {
			tx.Rollback()
			return err
		}
	}
	res, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM records WHERE id=?`), id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *recordsStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+recordColumns+recordFrom+` WHERE r.id=?`), id)
	rec, err := scanRecord(row)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.OfficerIDs, err = s.listOfficerIDs(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *recordsStore) GetRecordByNumber(ctx context.Context, number string) (*Record, error) {
	if strings.TrimSpace(number) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+recordColumns+recordFrom+` WHERE r.eo_number=?`), strings.TrimSpace(number))
	rec, err := scanRecord(row)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.OfficerIDs, err = s.listOfficerIDs(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *recordsStore) ListNumbersByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT eo_number FROM records WHERE eo_number LIKE ? ORDER BY eo_number`), prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// NextSequence bumps the counter for prefix and returns the new value. The
// result is never below floor, so numbers entered by hand are skipped.
func (s *recordsStore) NextSequence(ctx context.Context, prefix string, floor int64) (int64, error) {
	if floor < 1 {
		floor = 1
	}
	var seq int64
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO record_number_counters(prefix, seq)
		VALUES(?,?)
		ON CONFLICT (prefix)
		DO UPDATE SET seq = CASE
			WHEN record_number_counters.seq + 1 > excluded.seq THEN record_number_counters.seq + 1
			ELSE excluded.seq
		END
		RETURNING seq
	`), prefix, floor).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *recordsStore) ListDueRecords(ctx context.Context, filter DueFilter) ([]Record, error) {
	query := `SELECT ` + recordColumns + recordFrom + ` WHERE r.deadline IS NOT NULL AND r.deadline <= ? AND r.assigned_user_id IS NOT NULL`
	args := []any{filter.DueOnOrBefore.UTC()}
	if strings.TrimSpace(filter.ExcludeStatus) != "" {
		query += " AND r.status != ?"
		args = append(args, filter.ExcludeStatus)
	}
	query += " ORDER BY r.deadline ASC, r.eo_number ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

func (s *recordsStore) saveInvestigationTx(ctx context.Context, tx *sql.Tx, rec *Record) error {
	inv := rec.Investigation
	if strings.TrimSpace(inv.Stage) == "" {
		_, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM record_investigations WHERE record_id=?`), rec.ID)
		return err
	}
	items, err := json.Marshal(nonNilPenalties(inv.PenaltyItems))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO record_investigations(record_id, stage, review_result, initiated_at, order_number, order_date, order_assigned_at, final_result, completed_at, conclusion_approved_at, penalty_items, penalty_by_article13, penalty_order_number, penalty_order_date, penalty_officer_id, penalty_type, penalty_decision_type, penalty_other)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (record_id) DO UPDATE SET
			stage=excluded.stage, review_result=excluded.review_result, initiated_at=excluded.initiated_at,
			order_number=excluded.order_number, order_date=excluded.order_date, order_assigned_at=excluded.order_assigned_at,
			final_result=excluded.final_result, completed_at=excluded.completed_at, conclusion_approved_at=excluded.conclusion_approved_at,
			penalty_items=excluded.penalty_items, penalty_by_article13=excluded.penalty_by_article13,
			penalty_order_number=excluded.penalty_order_number, penalty_order_date=excluded.penalty_order_date,
			penalty_officer_id=excluded.penalty_officer_id, penalty_type=excluded.penalty_type,
			penalty_decision_type=excluded.penalty_decision_type, penalty_other=excluded.penalty_other`),
		rec.ID, inv.Stage, inv.ReviewResult, nullableTime(inv.InitiatedAt), nullableString(inv.OrderNumber), nullableTime(inv.OrderDate), nullableTime(inv.OrderAssignedAt),
		nullableString(inv.FinalResult), nullableTime(inv.CompletedAt), nullableTime(inv.ConclusionApprovedAt), string(items), boolToInt(inv.PenaltyByArticle13),
		nullableString(inv.PenaltyOrderNumber), nullableTime(inv.PenaltyOrderDate), nullableString(inv.PenaltyOfficerID), nullableString(inv.PenaltyType),
		nullableString(inv.PenaltyDecisionType), nullableString(inv.PenaltyOther))
	return err
}

func (s *recordsStore) replaceOfficersTx(ctx context.Context, tx *sql.Tx, recordID string, officerIDs []string) error {
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM record_officers WHERE record_id=?`), recordID); err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, raw := range officerIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO record_officers(record_id, officer_id) VALUES(?,?)`), recordID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *recordsStore) listOfficerIDs(ctx context.Context, recordID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT officer_id FROM record_officers WHERE record_id=? ORDER BY officer_id ASC`), recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var eoDate time.Time
	var deadline, processedAt, resolutionDate sql.NullTime
	var assigned, extStatus sql.NullString
	var concernsBPP int
	var stage, reviewResult, orderNumber, finalResult, penaltyItems, penaltyOrderNumber sql.NullString
	var penaltyOfficerID, penaltyType, penaltyDecisionType, penaltyOther sql.NullString
	var initiatedAt, orderDate, orderAssignedAt, completedAt, conclusionApprovedAt, penaltyOrderDate sql.NullTime
	var byArticle13 sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.EONumber, &rec.RecordType, &eoDate, &deadline, &rec.Description, &rec.Applicant, &rec.Address, &rec.Status,
		&processedAt, &rec.Resolution, &resolutionDate, &concernsBPP, &assigned, &extStatus, &rec.ExtensionReason, &rec.CreatedBy, &rec.UpdatedBy,
		&rec.CreatedAt, &rec.UpdatedAt,
		&stage, &reviewResult, &initiatedAt, &orderNumber, &orderDate, &orderAssignedAt, &finalResult, &completedAt, &conclusionApprovedAt,
		&penaltyItems, &byArticle13, &penaltyOrderNumber, &penaltyOrderDate, &penaltyOfficerID, &penaltyType, &penaltyDecisionType, &penaltyOther); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	y, m, d := eoDate.Date()
	rec.EODate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	rec.Deadline = datePtr(deadline)
	rec.ProcessedAt = timePtr(processedAt)
	rec.ResolutionDate = timePtr(resolutionDate)
	rec.ConcernsBPP = concernsBPP == 1
	rec.AssignedUserID = stringPtr(assigned)
	rec.ExtensionStatus = extStatus.String
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if stage.Valid {
		inv := Investigation{
			Stage:                stage.String,
			ReviewResult:         reviewResult.String,
			InitiatedAt:          timePtr(initiatedAt),
			OrderNumber:          orderNumber.String,
			OrderDate:            datePtr(orderDate),
			OrderAssignedAt:      timePtr(orderAssignedAt),
			FinalResult:          finalResult.String,
			CompletedAt:          timePtr(completedAt),
			ConclusionApprovedAt: datePtr(conclusionApprovedAt),
			PenaltyByArticle13:   byArticle13.Int64 == 1,
			PenaltyOrderNumber:   penaltyOrderNumber.String,
			PenaltyOrderDate:     datePtr(penaltyOrderDate),
			PenaltyOfficerID:     penaltyOfficerID.String,
			PenaltyType:          penaltyType.String,
			PenaltyDecisionType:  penaltyDecisionType.String,
			PenaltyOther:         penaltyOther.String,
		}
		if strings.TrimSpace(penaltyItems.String) != "" {
			if err := json.Unmarshal([]byte(penaltyItems.String), &inv.PenaltyItems); err != nil {
				return nil, fmt.Errorf("decode penalty items of %s: %w", rec.ID, err)
			}
		}
		if len(inv.PenaltyItems) == 0 {
			inv.PenaltyItems = nil
		}
		rec.Investigation = inv
	}
	return &rec, nil
}

func nonNilPenalties(items []PenaltyDecision) []PenaltyDecision {
	if items == nil {
		return []PenaltyDecision{}
	}
	return items
}
