package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"oblik/config"
	"oblik/core/utils"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBURL: filepath.Join(t.TempDir(), "store.db")}
	logger := utils.NewNopLogger()
	db, err := NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedOfficer(t *testing.T, rs RosterStore, id, last string) {
	t.Helper()
	if err := rs.CreateOfficer(context.Background(), &Officer{ID: id, FirstName: "Іван", LastName: last}); err != nil {
		t.Fatalf("officer %s: %v", id, err)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRecordRoundTripWithInvestigation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rs := NewRosterStore(db)
	seedOfficer(t, rs, "o1", "Петренко")
	seedOfficer(t, rs, "o2", "Бондар")
	store := NewRecordsStore(db)

	deadline := date(2026, 1, 24)
	orderDate := date(2026, 1, 20)
	rec := &Record{
		EONumber:   "SR-10",
		RecordType: "SERVICE_INVESTIGATION",
		EODate:     date(2026, 1, 10),
		Deadline:   &deadline,
		Status:     "IN_PROGRESS",
		OfficerIDs: []string{"o2", "o1"},
		Investigation: Investigation{
			Stage:       "SR_ORDER_ASSIGNED",
			OrderNumber: "77",
			OrderDate:   &orderDate,
			PenaltyItems: []PenaltyDecision{
				{OfficerID: "o1", DecisionType: "ARTICLE_13", PenaltyType: "догана"},
			},
			PenaltyByArticle13: true,
		},
	}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := store.GetRecord(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if !got.EODate.Equal(date(2026, 1, 10)) || got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Fatalf("dates not preserved: %v %v", got.EODate, got.Deadline)
	}
	if len(got.OfficerIDs) != 2 || got.OfficerIDs[0] != "o1" {
		t.Fatalf("unexpected officers %v", got.OfficerIDs)
	}
	inv := got.Investigation
	if inv.Stage != "SR_ORDER_ASSIGNED" || inv.OrderNumber != "77" || inv.OrderDate == nil || !inv.OrderDate.Equal(orderDate) {
		t.Fatalf("investigation not preserved: %+v", inv)
	}
	if len(inv.PenaltyItems) != 1 || inv.PenaltyItems[0].PenaltyType != "догана" || !inv.PenaltyByArticle13 {
		t.Fatalf("penalties not preserved: %+v", inv.PenaltyItems)
	}

	byNumber, err := store.GetRecordByNumber(ctx, "SR-10")
	if err != nil || byNumber == nil || byNumber.ID != rec.ID {
		t.Fatalf("by number: %v %v", byNumber, err)
	}
	missing, err := store.GetRecord(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing record, got %v %v", missing, err)
	}
}

func TestCreateRecordDuplicateNumber(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewRecordsStore(db)
	first := &Record{EONumber: "EO-1", RecordType: "EO", EODate: date(2026, 1, 10), Status: "PENDING"}
	if err := store.CreateRecord(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &Record{EONumber: "EO-1", RecordType: "ZVERN", EODate: date(2026, 1, 11), Status: "PENDING"}
	if err := store.CreateRecord(ctx, second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateRecordDropsInvestigationWithoutStage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewRecordsStore(db)
	rec := &Record{EONumber: "SR-1", RecordType: "SERVICE_INVESTIGATION", EODate: date(2026, 1, 10), Status: "PENDING",
		Investigation: Investigation{Stage: "REPORT_REVIEW", ReviewResult: "рапорт"}}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec.Investigation = Investigation{}
	rec.Status = "IN_PROGRESS"
	if err := store.UpdateRecord(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.GetRecord(ctx, rec.ID)
	if got.Investigation.Stage != "" || got.Status != "IN_PROGRESS" {
		t.Fatalf("unexpected record %+v", got)
	}

	ghost := &Record{ID: "ghost", EONumber: "X", RecordType: "EO", EODate: date(2026, 1, 1), Status: "PENDING"}
	if err := store.UpdateRecord(ctx, ghost); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteRecordRemovesDependents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedOfficer(t, NewRosterStore(db), "o1", "Петренко")
	store := NewRecordsStore(db)
	rec := &Record{EONumber: "SR-2", RecordType: "SERVICE_INVESTIGATION", EODate: date(2026, 1, 10), Status: "PENDING",
		OfficerIDs: []string{"o1"}, Investigation: Investigation{Stage: "REPORT_REVIEW"}}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.DeleteRecord(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM record_officers`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("officer links left: %d %v", n, err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM record_investigations`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("investigation rows left: %d %v", n, err)
	}
	if err := store.DeleteRecord(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestNextSequenceRespectsFloor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewRecordsStore(db)
	steps := []struct {
		floor int64
		want  int64
	}{
		{floor: 0, want: 1},
		{floor: 1, want: 2},
		{floor: 8, want: 8},
		{floor: 3, want: 9},
	}
	for _, step := range steps {
		got, err := store.NextSequence(ctx, "APP-2026-", step.floor)
		if err != nil {
			t.Fatalf("next sequence: %v", err)
		}
		if got != step.want {
			t.Fatalf("floor %d: expected %d, got %d", step.floor, step.want, got)
		}
	}
	other, err := store.NextSequence(ctx, "APP-2027-", 1)
	if err != nil || other != 1 {
		t.Fatalf("prefixes must count separately, got %d %v", other, err)
	}
}

func TestListNumbersByPrefix(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewRecordsStore(db)
	for _, n := range []string{"APP-2026-0002", "APP-2025-0009", "APP-2026-0001", "EO-5"} {
		if err := store.CreateRecord(ctx, &Record{EONumber: n, RecordType: "APPLICATION", EODate: date(2026, 1, 1), Status: "PENDING"}); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	got, err := store.ListNumbersByPrefix(ctx, "APP-2026-")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0] != "APP-2026-0001" || got[1] != "APP-2026-0002" {
		t.Fatalf("unexpected numbers %v", got)
	}
}

func TestListDueRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := NewRosterStore(db)
	u := &User{Username: "Inspector"}
	if err := users.CreateUser(ctx, u); err != nil {
		t.Fatalf("user: %v", err)
	}
	store := NewRecordsStore(db)
	mk := func(number, status string, deadline time.Time, assigned *string) {
		d := deadline
		if err := store.CreateRecord(ctx, &Record{EONumber: number, RecordType: "EO", EODate: date(2026, 1, 1), Deadline: &d, Status: status, AssignedUserID: assigned}); err != nil {
			t.Fatalf("create %s: %v", number, err)
		}
	}
	mk("EO-1", "PENDING", date(2026, 1, 14), &u.ID)
	mk("EO-2", "PROCESSED", date(2026, 1, 13), &u.ID)
	mk("EO-3", "IN_PROGRESS", date(2026, 1, 20), &u.ID)
	mk("EO-4", "PENDING", date(2026, 1, 10), nil)
	mk("EO-5", "APPROVAL", date(2026, 1, 10), &u.ID)

	due, err := store.ListDueRecords(ctx, DueFilter{DueOnOrBefore: date(2026, 1, 14), ExcludeStatus: "PROCESSED"})
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 || due[0].EONumber != "EO-5" || due[1].EONumber != "EO-1" {
		t.Fatalf("unexpected due records %+v", due)
	}

	found, err := users.FindUserByUsername(ctx, "inspector")
	if err != nil || found == nil || found.ID != u.ID {
		t.Fatalf("username lookup: %v %v", found, err)
	}
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	st := NewSettingsStore(db, AppSettings{EmailNotificationsEnabled: true})
	got, err := st.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.EmailNotificationsEnabled || got.ReminderDaysBefore != 2 {
		t.Fatalf("unexpected defaults %+v", got)
	}
	if err := st.UpdateSettings(ctx, &AppSettings{EmailNotificationsEnabled: false, ReminderDaysBefore: 5}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = st.GetSettings(ctx)
	if err != nil || got.EmailNotificationsEnabled || got.ReminderDaysBefore != 5 {
		t.Fatalf("update not applied: %+v %v", got, err)
	}
}

func TestNotificationsAndAudit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ns := NewNotificationsStore(db)
	n := &Notification{UserID: "u1", Title: "t", Message: "m", Type: "RECORD_ASSIGNED"}
	if err := ns.CreateNotification(ctx, n); err != nil {
		t.Fatalf("notification: %v", err)
	}
	items, err := ns.ListForUser(ctx, "u1", 10)
	if err != nil || len(items) != 1 || items[0].Priority != "normal" || items[0].ReadAt != nil {
		t.Fatalf("unexpected notifications %+v %v", items, err)
	}
	if err := ns.MarkRead(ctx, "u1", items[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	items, _ = ns.ListForUser(ctx, "u1", 10)
	if items[0].ReadAt == nil {
		t.Fatalf("expected read notification")
	}

	as := NewAuditStore(db)
	if err := as.Log(ctx, &AuditEntry{ActorID: "admin", Action: "records.create", EntityType: "record", EntityID: "r1", Metadata: map[string]any{"eo_number": "EO-1"}}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	entries, err := as.ListForEntity(ctx, "record", "r1")
	if err != nil || len(entries) != 1 || entries[0].Metadata["eo_number"] != "EO-1" {
		t.Fatalf("unexpected audit %+v %v", entries, err)
	}
}

func TestSchemaVersionAfterMigrations(t *testing.T) {
	db := setupTestDB(t)
	version, err := SchemaVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected schema version 1, got %d", version)
	}
}
