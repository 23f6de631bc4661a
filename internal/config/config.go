package config

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds runtime configuration for the analysis report service.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	DefaultJobLimit int

	HistGranularity float64
	HistMaxSamples  int

	StoreSQLitePath string

	DBEnabled        bool
	DBHost           string
	DBPort           int
	DBUser           string
	DBPassword       string
	DBName           string
	DBConnTimeout    time.Duration
	DBQueryTimeout   time.Duration
	DBJobTable       string
	DBTypeStatsTable string

	ScanExcludes       []string
	ScanFollowSymlinks bool
	ScanTimeout        time.Duration

	ChartWidth  int
	ChartHeight int
}

// FromEnv loads configuration from environment variables with sensible defaults.
func FromEnv() Config {
	loadConfigDefaultsFromFile()
	loadSecretsDefaultsFromFile()

	return Config{
		ListenAddr:         getEnv("APP_LISTEN_ADDR", ":8080"),
		ReadTimeout:        time.Duration(getEnvInt("APP_READ_TIMEOUT_SEC", 10)) * time.Second,
		WriteTimeout:       time.Duration(getEnvInt("APP_WRITE_TIMEOUT_SEC", 20)) * time.Second,
		ShutdownTimeout:    time.Duration(getEnvInt("APP_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		DefaultJobLimit:    getEnvInt("APP_DEFAULT_JOB_LIMIT", 50),
		HistGranularity:    getEnvFloat("APP_HIST_GRANULARITY", 5),
		HistMaxSamples:     getEnvInt("APP_HIST_MAX_SAMPLES", 1_000_000),
		StoreSQLitePath:    getEnv("APP_STORE_SQLITE_PATH", ""),
		DBEnabled:          getEnvBool("APP_DB_ENABLED", false),
		DBHost:             getEnv("APP_DB_HOST", "127.0.0.1"),
		DBPort:             getEnvInt("APP_DB_PORT", 3306),
		DBUser:             getEnv("APP_DB_USER", "os2datascanner"),
		DBPassword:         getEnv("APP_DB_PASSWORD", ""),
		DBName:             getEnv("APP_DB_NAME", "os2datascanner_admin"),
		DBConnTimeout:      time.Duration(getEnvInt("APP_DB_CONN_TIMEOUT_SEC", 5)) * time.Second,
		DBQueryTimeout:     time.Duration(getEnvInt("APP_DB_QUERY_TIMEOUT_SEC", 10)) * time.Second,
		DBJobTable:         getEnv("APP_DB_JOB_TABLE", "os2datascanner_analysisjob"),
		DBTypeStatsTable:   getEnv("APP_DB_TYPESTATS_TABLE", "os2datascanner_typestats"),
		ScanExcludes:       getEnvList("APP_SCAN_EXCLUDES", nil),
		ScanFollowSymlinks: getEnvBool("APP_SCAN_FOLLOW_SYMLINKS", false),
		ScanTimeout:        time.Duration(getEnvInt("APP_SCAN_TIMEOUT_SEC", 600)) * time.Second,
		ChartWidth:         getEnvInt("APP_CHART_WIDTH", 800),
		ChartHeight:        getEnvInt("APP_CHART_HEIGHT", 400),
	}
}

// loadConfigDefaultsFromFile seeds unset variables from the bootstrap env
// files, then from the first readable explicit or system config file.
func loadConfigDefaultsFromFile() {
	for _, candidate := range []string{"./ds-analysis-report.env", "/etc/default/ds-analysis-report"} {
		_ = applyEnvDefaultsFromFile(absPath(candidate))
	}

	candidates := []string{"/etc/ds-analysis-report/config.env"}
	if explicit := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); explicit != "" {
		candidates = append([]string{explicit}, candidates...)
	}
	firstReadable(candidates)
}

func loadSecretsDefaultsFromFile() {
	var candidates []string
	if explicit := strings.TrimSpace(os.Getenv("APP_SECRETS_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	if credDir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY")); credDir != "" {
		credName := getEnv("APP_SECRETS_CREDENTIAL_NAME", "app-secrets")
		candidates = append(candidates, filepath.Join(credDir, credName))
	}
	candidates = append(candidates, "/etc/ds-analysis-report/secrets.env")
	firstReadable(candidates)
}

func firstReadable(candidates []string) {
	for _, candidate := range candidates {
		if err := applyEnvDefaultsFromFile(absPath(candidate)); err == nil {
			return
		}
	}
}

func absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, p)
	}
	return p
}

// applyEnvDefaultsFromFile reads KEY=value lines and sets each key that is
// not already present in the environment. Values may be quoted.
func applyEnvDefaultsFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" {
			continue
		}
		if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
			val = val[1 : n-1]
		}
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
	return scanner.Err()
}

// MySQLDSN returns a mysql driver DSN for the scanner admin database.
func (c Config) MySQLDSN() string {
	dsn := mysql.NewConfig()
	dsn.User = c.DBUser
	dsn.Passwd = c.DBPassword
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort))
	dsn.DBName = c.DBName
	dsn.ParseTime = true
	dsn.Timeout = c.DBConnTimeout
	dsn.ReadTimeout = c.DBQueryTimeout
	dsn.WriteTimeout = c.DBQueryTimeout
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	return getEnvParsed(key, def, strconv.Atoi)
}

func getEnvFloat(key string, def float64) float64 {
	return getEnvParsed(key, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getEnvBool(key string, def bool) bool {
	return getEnvParsed(key, def, strconv.ParseBool)
}

func getEnvParsed[T any](key string, def T, parse func(string) (T, error)) T {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	parsed, err := parse(val)
	if err != nil {
		return def
	}
	return parsed
}

// getEnvList splits a comma separated variable, dropping blank items.
func getEnvList(key string, def []string) []string {
	parts := def
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		parts = strings.Split(val, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
