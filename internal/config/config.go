package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	Metrics struct {
		Addr string
	}

	// Scoring tolerances are business tuning, kept overridable.
	Scoring struct {
		ReasonThreshold         float64
		PriceTolerance          float64
		ActivityBudgetTolerance float64
		AgeFullBand             int
		AgeFadeBand             int
		LeaseToleranceMonths    int
	}

	Recommend struct {
		TTL            time.Duration
		SceneTTL       map[string]time.Duration
		DefaultLimit   int
		CacheDepth     int
		CandidateLimit int
		TrustThreshold float64
	}

	Scheduler struct {
		Tick                 time.Duration
		BulkEvery            time.Duration
		CleanupEvery         time.Duration
		StatsEvery           time.Duration
		BatchSize            int
		Workers              int
		MaxFailures          int
		JobTimeout           time.Duration
		ItemTimeout          time.Duration
		RetryBackoff         time.Duration
		ActionRetention      time.Duration
		CacheRetention       time.Duration
		MatchIdleAfter       time.Duration
		ClosedMatchRetention time.Duration
	}
}

func New() *Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "scene_match")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "scene_match")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getIntDefault("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	cfg.Metrics.Addr = getEnvDefault("METRICS_ADDR", ":9090")

	// Scoring
	cfg.Scoring.ReasonThreshold = getFloatDefault("SCORE_REASON_THRESHOLD", 60)
	cfg.Scoring.PriceTolerance = getFloatDefault("SCORE_PRICE_TOLERANCE", 500)
	cfg.Scoring.ActivityBudgetTolerance = getFloatDefault("SCORE_ACTIVITY_BUDGET_TOLERANCE", 50)
	cfg.Scoring.AgeFullBand = getIntDefault("SCORE_AGE_FULL_BAND", 3)
	cfg.Scoring.AgeFadeBand = getIntDefault("SCORE_AGE_FADE_BAND", 2)
	cfg.Scoring.LeaseToleranceMonths = getIntDefault("SCORE_LEASE_TOLERANCE_MONTHS", 6)

	// Recommendations
	cfg.Recommend.TTL = getDurationDefault("REC_TTL", 24*time.Hour)
	cfg.Recommend.SceneTTL = map[string]time.Duration{}
	for _, scene := range []string{"housing", "dating", "activity"} {
		key := "REC_TTL_" + strings.ToUpper(scene)
		if d := getDurationDefault(key, 0); d > 0 {
			cfg.Recommend.SceneTTL[scene] = d
		}
	}
	cfg.Recommend.DefaultLimit = getIntDefault("REC_DEFAULT_LIMIT", 10)
	cfg.Recommend.CacheDepth = getIntDefault("REC_CACHE_DEPTH", 50)
	cfg.Recommend.CandidateLimit = getIntDefault("REC_CANDIDATE_LIMIT", 500)
	cfg.Recommend.TrustThreshold = getFloatDefault("REC_TRUST_THRESHOLD", 0)

	// Scheduler
	cfg.Scheduler.Tick = getDurationDefault("SCHED_TICK", time.Minute)
	cfg.Scheduler.BulkEvery = getDurationDefault("SCHED_BULK_EVERY", 24*time.Hour)
	cfg.Scheduler.CleanupEvery = getDurationDefault("SCHED_CLEANUP_EVERY", time.Hour)
	cfg.Scheduler.StatsEvery = getDurationDefault("SCHED_STATS_EVERY", 30*time.Minute)
	cfg.Scheduler.BatchSize = getIntDefault("SCHED_BATCH_SIZE", 200)
	cfg.Scheduler.Workers = getIntDefault("SCHED_WORKERS", 8)
	cfg.Scheduler.MaxFailures = getIntDefault("SCHED_MAX_FAILURES", 10)
	cfg.Scheduler.JobTimeout = getDurationDefault("SCHED_JOB_TIMEOUT", 30*time.Minute)
	cfg.Scheduler.ItemTimeout = getDurationDefault("SCHED_ITEM_TIMEOUT", 30*time.Second)
	cfg.Scheduler.RetryBackoff = getDurationDefault("SCHED_RETRY_BACKOFF", 5*time.Minute)
	cfg.Scheduler.ActionRetention = getDurationDefault("SCHED_ACTION_RETENTION", 30*24*time.Hour)
	cfg.Scheduler.CacheRetention = getDurationDefault("SCHED_CACHE_RETENTION", 48*time.Hour)
	cfg.Scheduler.MatchIdleAfter = getDurationDefault("SCHED_MATCH_IDLE_AFTER", 7*24*time.Hour)
	cfg.Scheduler.ClosedMatchRetention = getDurationDefault("SCHED_CLOSED_MATCH_RETENTION", 90*24*time.Hour)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getIntDefault(k string, def int) int {
	if v, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func getFloatDefault(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return v
	}
	return def
}

func getDurationDefault(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
