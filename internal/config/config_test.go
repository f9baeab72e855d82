package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func mapLookup(values map[string]string) Lookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFromSourcesLayersFileAndEnv(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "formflow.yaml", `
backend:
  kind: postgrest
  url: https://project.example.co
  apiKey: file-key
  timeout: 5s
tables:
  forms: templates
pageSize: 200
vatRate: "0.10"
log:
  level: debug
`)

	cfg, err := FromSources(path, mapLookup(map[string]string{
		"FORMFLOW_BACKEND_KEY": "env-key",
		"FORMFLOW_HTTP_ADDR":   "127.0.0.1:9000",
		"FORMFLOW_LOG_FORMAT":  "console",
	}))
	if err != nil {
		t.Fatalf("FromSources returned error: %v", err)
	}

	want := Default()
	want.Backend = Backend{Kind: BackendPostgREST, URL: "https://project.example.co", APIKey: "env-key", Timeout: 5 * time.Second}
	want.Tables.Forms = "templates"
	want.PageSize = 200
	want.VATRate = "0.10"
	want.Log = Log{Level: "debug", Format: "console"}
	want.HTTP.Addr = "127.0.0.1:9000"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	rate, err := cfg.Rate()
	if err != nil || !rate.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("unexpected rate %s (%v)", rate, err)
	}
	if got := cfg.RepositoryTables(); got.Forms != "templates" || got.Requests != "requests" {
		t.Fatalf("unexpected tables %+v", got)
	}
}

func TestFromSourcesSQLBackendFromEnv(t *testing.T) {
	t.Parallel()

	cfg, err := FromSources("", mapLookup(map[string]string{
		"FORMFLOW_BACKEND":      "sql",
		"FORMFLOW_DATABASE_DSN": "postgres://formflow@localhost/formflow?sslmode=disable",
		"FORMFLOW_PAGE_SIZE":    "100",
		"FORMFLOW_TIMEOUT":      "2s",
	}))
	if err != nil {
		t.Fatalf("FromSources returned error: %v", err)
	}
	if cfg.Backend.Kind != BackendSQL || cfg.PageSize != 100 || cfg.Backend.Timeout != 2*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFromSourcesRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	base := map[string]string{
		"FORMFLOW_BACKEND_URL": "https://project.example.co",
		"FORMFLOW_BACKEND_KEY": "key",
	}
	cases := map[string]map[string]string{
		"missing url":    {"FORMFLOW_BACKEND_KEY": "key"},
		"unknown kind":   {"FORMFLOW_BACKEND": "mongo"},
		"sql no dsn":     {"FORMFLOW_BACKEND": "sql"},
		"bad page size":  {"FORMFLOW_PAGE_SIZE": "many"},
		"page too large": {"FORMFLOW_PAGE_SIZE": "100000"},
		"bad rate":       {"FORMFLOW_VAT_RATE": "1.5"},
		"bad timeout":    {"FORMFLOW_TIMEOUT": "soon"},
	}
	for name, overrides := range cases {
		env := map[string]string{}
		if name != "missing url" {
			for key, value := range base {
				env[key] = value
			}
		}
		for key, value := range overrides {
			env[key] = value
		}
		if _, err := FromSources("", mapLookup(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	t.Parallel()

	envFile := writeFile(t, "test.env", "FORMFLOW_BACKEND=sql\nFORMFLOW_DATABASE_DSN=postgres://env-file/formflow\nFORMFLOW_TEMPLATES_DIR=./forms\n")

	cfg, err := Load("", envFile, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Backend.Kind != BackendSQL || cfg.TemplatesDir != "./forms" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
