package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`db_driver: sqlite
db_url: /tmp/oblik.db
records:
  default_term_days: 10
  sequence_retry_max_elapsed: 2s
reminders:
  cron_spec: "30 7 * * 1-5"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("OBLIK_REMINDERS_DAYS_BEFORE", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsSQLite() || cfg.DBURL != "/tmp/oblik.db" {
		t.Fatalf("unexpected db settings %+v", cfg)
	}
	if cfg.TermDays() != 10 || cfg.Records.SequenceRetryMaxElapsed != 2*time.Second {
		t.Fatalf("unexpected records config %+v", cfg.Records)
	}
	if cfg.Records.ApplicationNumberFormat != "APP-{year}-{seq:04}" {
		t.Fatalf("default number format not applied: %q", cfg.Records.ApplicationNumberFormat)
	}
	if cfg.Reminders.CronSpec != "30 7 * * 1-5" || cfg.Reminders.DaysBefore != 4 {
		t.Fatalf("unexpected reminders config %+v", cfg.Reminders)
	}
	if cfg.NotifyTimeout() != 10*time.Second {
		t.Fatalf("unexpected notify timeout %s", cfg.NotifyTimeout())
	}
}

func TestValidate(t *testing.T) {
	base := AppConfig{DBDriver: "postgres", DBURL: "postgres://x", Records: RecordsConfig{ApplicationNumberFormat: "APP-{year}-{seq:04}"}}
	cases := []struct {
		name   string
		mutate func(*AppConfig)
		ok     bool
	}{
		{name: "valid", mutate: func(*AppConfig) {}, ok: true},
		{name: "driver", mutate: func(c *AppConfig) { c.DBDriver = "mysql" }},
		{name: "url", mutate: func(c *AppConfig) { c.DBURL = " " }},
		{name: "format", mutate: func(c *AppConfig) { c.Records.ApplicationNumberFormat = "APP-{year}" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTermDaysFallback(t *testing.T) {
	var nilCfg *AppConfig
	if nilCfg.TermDays() != 15 {
		t.Fatalf("nil config must use the default term")
	}
	if (&AppConfig{}).TermDays() != 15 {
		t.Fatalf("zero term must use the default")
	}
}
