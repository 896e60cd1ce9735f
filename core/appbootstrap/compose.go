package appbootstrap

import (
	"net/http"

	"oblik/api"
	"oblik/api/handlers"
	"oblik/config"
	"oblik/core/importer"
	"oblik/core/metrics"
	"oblik/core/notify"
	"oblik/core/records"
	"oblik/core/reminders"
	"oblik/core/store"
	"oblik/core/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type runtimeComposition struct {
	server    *api.Server
	service   *records.Service
	reminders *reminders.Scheduler
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger, reg *prometheus.Registry) *runtimeComposition {
	recordsStore := store.NewRecordsStore(db)
	roster := store.NewRosterStore(db)
	audits := store.NewAuditStore(db)
	notifications := store.NewNotificationsStore(db)
	settings := store.NewSettingsStore(db, store.AppSettings{
		EmailNotificationsEnabled: cfg.Notifications.EmailEnabledDefault,
		ReminderDaysBefore:        cfg.Reminders.DaysBefore,
	})
	m := metrics.New(reg)

	var escalator notify.Escalator
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		escalator = notify.NewTelegramEscalator("", cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID, cfg.NotifyTimeout())
	}
	notifier := notify.NewStoreNotifier(notifications, escalator, logger)
	var mailer notify.Mailer = notify.NopMailer{}
	if cfg.Notifications.MailAPIURL != "" {
		mailer = notify.NewHTTPMailer(cfg.Notifications.MailAPIURL, cfg.Notifications.MailAPIToken, cfg.Notifications.MailFrom, cfg.NotifyTimeout())
	}

	svc := records.NewService(records.Deps{
		Records:  recordsStore,
		Roster:   roster,
		Audit:    audits,
		Settings: settings,
		Notifier: notifier,
		Mailer:   mailer,
		Metrics:  m,
		Logger:   logger,
	}, records.Options{
		TermDays:                cfg.TermDays(),
		ApplicationNumberFormat: cfg.Records.ApplicationNumberFormat,
		SequenceRetryMaxElapsed: cfg.Records.SequenceRetryMaxElapsed,
		PublicURL:               cfg.Notifications.PublicURL,
		EmailEnabledDefault:     cfg.Notifications.EmailEnabledDefault,
	})
	imp := importer.New(svc, roster, cfg.Records.ImportMaxRows, m, logger.With(zap.String("component", "importer")))
	scheduler := reminders.NewScheduler(cfg.Reminders, cfg.Notifications, reminders.Deps{
		Records:  recordsStore,
		Roster:   roster,
		Settings: settings,
		Notifier: notifier,
		Mailer:   mailer,
		Metrics:  m,
		Logger:   logger.With(zap.String("component", "reminders")),
	})

	var metricsHandler http.Handler
	if reg != nil {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	server := api.NewServer(cfg, handlers.NewRecordsHandler(svc, imp, audits, logger), metricsHandler, logger)
	return &runtimeComposition{server: server, service: svc, reminders: scheduler}
}
