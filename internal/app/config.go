package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raysh454/webaudit/internal/archive"
	"github.com/raysh454/webaudit/internal/checks"
	"github.com/raysh454/webaudit/internal/report"
	"github.com/raysh454/webaudit/internal/utils"
	"github.com/raysh454/webaudit/internal/watch"
	"github.com/raysh454/webaudit/internal/webclient"
)

// Config is the runtime configuration shared by the serve and watch
// commands. Fields are grouped by the component that reads them.
type Config struct {
	// Addr is the listen address of the results API.
	Addr string

	// AllowedOrigins restricts browser access to the API. Empty allows any
	// origin.
	AllowedOrigins []string

	// LogLevel is the minimum level written by the logger.
	LogLevel string

	// Plan names the check plan each scan runs.
	Plan string

	// DBPath is the SQLite scan history. Empty disables history.
	DBPath string

	// ReportPath receives the JSON report of every finished scan. Empty
	// disables the report file.
	ReportPath string

	// JobRetention is how long finished jobs stay listed.
	JobRetention time.Duration

	// RescanCron and RescanURL schedule periodic scans when both are set.
	RescanCron string
	RescanURL  string

	WebClientCfg webclient.Config
	ArchiveCfg   archive.Config
	URLOpts      utils.CanonicalizeOptions
	Watch        WatchConfig
}

// WatchConfig configures the polling client.
type WatchConfig struct {
	// ServerURL is the base URL of the results API.
	ServerURL string
	Interval  time.Duration
	// TotalSteps is the step count that ends polling.
	TotalSteps int
	// MaxWait gives up polling after this long. Zero waits forever.
	MaxWait time.Duration
	// ChartPath receives the doughnut chart PNG. Empty keeps only the
	// terminal legend.
	ChartPath string
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8080",
		LogLevel:     "info",
		Plan:         checks.PlanFunctional,
		DBPath:       "./data/webaudit.db",
		ReportPath:   report.DefaultPath,
		JobRetention: time.Hour,
		WebClientCfg: webclient.Config{
			Client:  webclient.ClientNetHTTP,
			Timeout: 15 * time.Second,
		},
		URLOpts: utils.DefaultCanonicalizeOptions(),
		Watch: WatchConfig{
			ServerURL:  "http://localhost:8080",
			Interval:   watch.DefaultInterval,
			TotalSteps: watch.DefaultTotalSteps,
			ChartPath:  "scan_chart.png",
		},
	}
}

// LoadFromEnv overrides cfg with WEBAUDIT_* environment variables. Values
// that do not parse are ignored.
func LoadFromEnv(cfg *Config) {
	cfg.Addr = getEnv("WEBAUDIT_ADDR", cfg.Addr)
	cfg.LogLevel = getEnv("WEBAUDIT_LOG_LEVEL", cfg.LogLevel)
	cfg.AllowedOrigins = getEnvList("WEBAUDIT_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.Plan = getEnv("WEBAUDIT_PLAN", cfg.Plan)
	cfg.DBPath = getEnv("WEBAUDIT_DB_PATH", cfg.DBPath)
	cfg.ReportPath = getEnv("WEBAUDIT_REPORT_PATH", cfg.ReportPath)
	cfg.JobRetention = getEnvDuration("WEBAUDIT_JOB_RETENTION", cfg.JobRetention)
	cfg.RescanCron = getEnv("WEBAUDIT_RESCAN_CRON", cfg.RescanCron)
	cfg.RescanURL = getEnv("WEBAUDIT_RESCAN_URL", cfg.RescanURL)

	cfg.WebClientCfg.Client = webclient.Client(getEnv("WEBAUDIT_WEBCLIENT", string(cfg.WebClientCfg.Client)))
	cfg.WebClientCfg.Timeout = getEnvDuration("WEBAUDIT_HTTP_TIMEOUT", cfg.WebClientCfg.Timeout)
	cfg.WebClientCfg.UserAgent = getEnv("WEBAUDIT_USER_AGENT", cfg.WebClientCfg.UserAgent)

	cfg.ArchiveCfg.Endpoint = getEnv("WEBAUDIT_S3_ENDPOINT", cfg.ArchiveCfg.Endpoint)
	cfg.ArchiveCfg.AccessKey = getEnv("WEBAUDIT_S3_ACCESS_KEY", cfg.ArchiveCfg.AccessKey)
	cfg.ArchiveCfg.SecretKey = getEnv("WEBAUDIT_S3_SECRET_KEY", cfg.ArchiveCfg.SecretKey)
	cfg.ArchiveCfg.Bucket = getEnv("WEBAUDIT_S3_BUCKET", cfg.ArchiveCfg.Bucket)
	cfg.ArchiveCfg.Prefix = getEnv("WEBAUDIT_S3_PREFIX", cfg.ArchiveCfg.Prefix)
	cfg.ArchiveCfg.UseSSL = getEnvBool("WEBAUDIT_S3_USE_SSL", cfg.ArchiveCfg.UseSSL)

	cfg.Watch.ServerURL = getEnv("WEBAUDIT_SERVER_URL", cfg.Watch.ServerURL)
	cfg.Watch.Interval = getEnvDuration("WEBAUDIT_POLL_INTERVAL", cfg.Watch.Interval)
	cfg.Watch.TotalSteps = getEnvInt("WEBAUDIT_TOTAL_STEPS", cfg.Watch.TotalSteps)
	cfg.Watch.MaxWait = getEnvDuration("WEBAUDIT_MAX_WAIT", cfg.Watch.MaxWait)
	cfg.Watch.ChartPath = getEnv("WEBAUDIT_CHART_PATH", cfg.Watch.ChartPath)
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
