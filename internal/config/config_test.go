package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", ":9090")
	t.Setenv("APP_HIST_GRANULARITY", "12.5")
	t.Setenv("APP_DB_ENABLED", "true")
	t.Setenv("APP_DB_PORT", "not-a-number")
	t.Setenv("APP_SCAN_EXCLUDES", " **/.git , ,node_modules ")
	t.Setenv("APP_SCAN_TIMEOUT_SEC", "30")

	cfg := FromEnv()
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.HistGranularity != 12.5 {
		t.Fatalf("unexpected granularity %v", cfg.HistGranularity)
	}
	if !cfg.DBEnabled {
		t.Fatalf("expected db enabled")
	}
	if cfg.DBPort != 3306 {
		t.Fatalf("expected default port on parse error, got %d", cfg.DBPort)
	}
	if want := []string{"**/.git", "node_modules"}; !reflect.DeepEqual(cfg.ScanExcludes, want) {
		t.Fatalf("expected %v, got %v", want, cfg.ScanExcludes)
	}
	if cfg.ScanTimeout != 30*time.Second {
		t.Fatalf("unexpected scan timeout %v", cfg.ScanTimeout)
	}
}

func TestApplyEnvDefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	content := "# comment\nDSA_TEST_A=\"quoted value\"\nDSA_TEST_B='single'\nDSA_TEST_C=kept\nnot a pair\n=novalue\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DSA_TEST_A", "")
	t.Setenv("DSA_TEST_B", "")
	t.Setenv("DSA_TEST_C", "from-env")

	if err := applyEnvDefaultsFromFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("DSA_TEST_A"); got != "quoted value" {
		t.Fatalf("unexpected A %q", got)
	}
	if got := os.Getenv("DSA_TEST_B"); got != "single" {
		t.Fatalf("unexpected B %q", got)
	}
	if got := os.Getenv("DSA_TEST_C"); got != "from-env" {
		t.Fatalf("existing variable was overwritten: %q", got)
	}
}

func TestMySQLDSN(t *testing.T) {
	cfg := Config{
		DBUser:         "scanner",
		DBPassword:     "s3cret",
		DBHost:         "db.local",
		DBPort:         3307,
		DBName:         "admin",
		DBConnTimeout:  5 * time.Second,
		DBQueryTimeout: 10 * time.Second,
	}
	parsed, err := mysql.ParseDSN(cfg.MySQLDSN())
	if err != nil {
		t.Fatalf("dsn does not parse: %v", err)
	}
	if parsed.User != "scanner" || parsed.Passwd != "s3cret" || parsed.Addr != "db.local:3307" || parsed.DBName != "admin" {
		t.Fatalf("unexpected dsn fields: %+v", parsed)
	}
	if !parsed.ParseTime || parsed.Timeout != 5*time.Second || parsed.ReadTimeout != 10*time.Second {
		t.Fatalf("unexpected dsn options: %+v", parsed)
	}
}
