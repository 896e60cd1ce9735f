package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"oblik/config"
	"oblik/core/notify"
	"oblik/core/store"
	"oblik/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecords struct {
	store.RecordsStore
	due    []store.Record
	filter store.DueFilter
}

func (f *fakeRecords) ListDueRecords(_ context.Context, filter store.DueFilter) ([]store.Record, error) {
	f.filter = filter
	var out []store.Record
	for _, rec := range f.due {
		if rec.Deadline != nil && !rec.Deadline.After(filter.DueOnOrBefore) && rec.Status != filter.ExcludeStatus {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeSettings struct {
	settings store.AppSettings
}

func (f *fakeSettings) GetSettings(context.Context) (*store.AppSettings, error) {
	s := f.settings
	return &s, nil
}

func (f *fakeSettings) UpdateSettings(_ context.Context, s *store.AppSettings) error {
	f.settings = *s
	return nil
}

type fakeRoster struct {
	store.RosterStore
	users map[string]*store.User
}

func (f *fakeRoster) GetUser(_ context.Context, id string) (*store.User, error) {
	return f.users[id], nil
}

type captureNotifier struct {
	items []notify.Notification
	fail  map[string]bool
}

func (c *captureNotifier) Notify(_ context.Context, n notify.Notification) error {
	if c.fail[n.UserID] {
		return errors.New("down")
	}
	c.items = append(c.items, n)
	return nil
}

type captureMailer struct {
	mails []notify.Mail
}

func (c *captureMailer) Send(_ context.Context, m notify.Mail) error {
	c.mails = append(c.mails, m)
	return nil
}

func ptr[T any](v T) *T { return &v }

func day(d int) *time.Time {
	t := time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestRunOnceBuildsRemindersByUrgency(t *testing.T) {
	records := &fakeRecords{due: []store.Record{
		{ID: "r1", EONumber: "EO-1", Deadline: day(10), Status: "IN_PROGRESS", AssignedUserID: ptr("u1")},
		{ID: "r2", EONumber: "EO-2", Deadline: day(12), Status: "PENDING", AssignedUserID: ptr("u1")},
		{ID: "r3", EONumber: "EO-3", Deadline: day(14), Status: "APPROVAL", AssignedUserID: ptr("u2")},
		{ID: "r4", EONumber: "EO-4", Deadline: day(15), Status: "PENDING", AssignedUserID: ptr("u2")},
		{ID: "r5", EONumber: "EO-5", Deadline: day(9), Status: "PROCESSED", AssignedUserID: ptr("u2")},
	}}
	notifier := &captureNotifier{}
	mailer := &captureMailer{}
	s := NewScheduler(config.RemindersConfig{DaysBefore: 7}, config.NotificationsConfig{PublicURL: "https://oblik.test/"}, Deps{
		Records:  records,
		Roster:   &fakeRoster{users: map[string]*store.User{"u1": {ID: "u1", Email: "u1@oblik.test", Active: true}}},
		Settings: &fakeSettings{settings: store.AppSettings{EmailNotificationsEnabled: true, ReminderDaysBefore: 2}},
		Notifier: notifier,
		Mailer:   mailer,
		Logger:   utils.NewNopLogger(),
	})

	sent, err := s.RunOnce(context.Background(), time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, *day(14), records.filter.DueOnOrBefore, "settings override the configured window")
	assert.Equal(t, "PROCESSED", records.filter.ExcludeStatus)

	require.Len(t, notifier.items, 3)
	overdue, today, soon := notifier.items[0], notifier.items[1], notifier.items[2]
	assert.Equal(t, notify.PriorityHigh, overdue.Priority)
	assert.Equal(t, "Строк виконання минув", overdue.Title)
	assert.Equal(t, "https://oblik.test/records/r1", overdue.Link)
	assert.Equal(t, notify.PriorityNormal, today.Priority)
	assert.Contains(t, today.Message, "сьогодні")
	assert.Contains(t, soon.Message, "днів: 2")
	assert.Equal(t, notify.TypeDeadline, soon.Type)

	assert.Len(t, mailer.mails, 2, "only the user with an email gets mail")
}

func TestRunOnceSkipsFailedNotifications(t *testing.T) {
	records := &fakeRecords{due: []store.Record{
		{ID: "r1", EONumber: "EO-1", Deadline: day(12), Status: "PENDING", AssignedUserID: ptr("u1")},
		{ID: "r2", EONumber: "EO-2", Deadline: day(12), Status: "PENDING", AssignedUserID: ptr("u2")},
	}}
	notifier := &captureNotifier{fail: map[string]bool{"u1": true}}
	s := NewScheduler(config.RemindersConfig{DaysBefore: 1}, config.NotificationsConfig{}, Deps{
		Records:  records,
		Notifier: notifier,
		Logger:   utils.NewNopLogger(),
	})
	sent, err := s.RunOnce(context.Background(), time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, *day(13), records.filter.DueOnOrBefore)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(config.RemindersConfig{Enabled: true, CronSpec: "0 8 * * *", Timezone: "Europe/Kyiv"}, config.NotificationsConfig{}, Deps{
		Records:  &fakeRecords{},
		Notifier: &captureNotifier{},
		Logger:   utils.NewNopLogger(),
	})
	require.NoError(t, s.StartWithContext(context.Background()))
	require.NoError(t, s.StartWithContext(context.Background()))
	require.NoError(t, s.StopWithContext(context.Background()))
	require.NoError(t, s.StopWithContext(context.Background()))

	bad := NewScheduler(config.RemindersConfig{Enabled: true, CronSpec: "not a spec"}, config.NotificationsConfig{}, Deps{})
	assert.Error(t, bad.StartWithContext(context.Background()))

	disabled := NewScheduler(config.RemindersConfig{}, config.NotificationsConfig{}, Deps{})
	assert.NoError(t, disabled.StartWithContext(context.Background()))
}
