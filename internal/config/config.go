package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"github.com/Harshitk-cp/atomspace/internal/store"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by ATOMSPACE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("ATOMSPACE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the environment may already be populated.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is only needed by the postgres snapshot backend.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

const (
	BackendFile     = store.BackendFile
	BackendSQLite   = store.BackendSQLite
	BackendPostgres = store.BackendPostgres
	BackendNone     = store.BackendNone
)

// SnapshotBackend returns where snapshots are kept.
// Valid values: file, sqlite, postgres, none. Defaults to file.
func SnapshotBackend() string {
	switch b := os.Getenv("SNAPSHOT_BACKEND"); b {
	case BackendFile, BackendSQLite, BackendPostgres, BackendNone:
		return b
	default:
		return BackendFile
	}
}

// SnapshotPath is the file used by the file and sqlite backends.
func SnapshotPath() string {
	p := os.Getenv("SNAPSHOT_PATH")
	if p != "" {
		return p
	}
	if SnapshotBackend() == BackendSQLite {
		return "atomspace.db"
	}
	return "atomspace.json"
}

// Snapshot gathers the snapshot backend settings.
func Snapshot() store.SnapshotConfig {
	return store.SnapshotConfig{
		Backend:     SnapshotBackend(),
		Path:        SnapshotPath(),
		DatabaseURL: DatabaseURL(),
	}
}

// RulesFile points at the YAML rule configuration. Empty means built-in rules.
func RulesFile() string {
	return os.Getenv("RULES_FILE")
}

// ProvenancePolicy decides what removing a premise of a recorded step does.
// Defaults to reject.
func ProvenancePolicy() domain.ProvenancePolicy {
	p := os.Getenv("PROVENANCE_POLICY")
	if domain.ValidProvenancePolicy(p) {
		return domain.ProvenancePolicy(p)
	}
	return domain.ProvenanceReject
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

const (
	DecayPerPass = "pass"
	DecayTimer   = "timer"
	DecayOff     = "off"
)

// AttentionDecayMode is pass (decay after every forward pass), timer
// (background worker) or off. Defaults to pass.
func AttentionDecayMode() string {
	switch m := os.Getenv("ATTENTION_DECAY_MODE"); m {
	case DecayPerPass, DecayTimer, DecayOff:
		return m
	default:
		return DecayPerPass
	}
}

func AttentionDecayRate() float64 {
	return floatEnv("ATTENTION_DECAY_RATE", service.DefaultDecayRate)
}

func AttentionDecayInterval() time.Duration {
	return durationEnv("ATTENTION_DECAY_INTERVAL", time.Minute)
}

func AttentionTouchIncrement() float64 {
	return floatEnv("ATTENTION_TOUCH_INCREMENT", service.DefaultTouchIncrement)
}

func ChainMaxPasses() int {
	return intEnv("CHAIN_MAX_PASSES", service.DefaultMaxPasses)
}

func ChainMaxSteps() int {
	return intEnv("CHAIN_MAX_STEPS", service.DefaultMaxSteps)
}

func ChainTimeout() time.Duration {
	return durationEnv("CHAIN_TIMEOUT", service.DefaultChainTimeout)
}

func ChainMaxDepth() int {
	return intEnv("CHAIN_MAX_DEPTH", service.DefaultMaxDepth)
}

// ChainWorkers bounds concurrent premise matching. Defaults to the CPU count.
func ChainWorkers() int {
	return intEnv("CHAIN_WORKERS", runtime.NumCPU())
}

// Engine assembles the chaining configuration from the environment and the
// rule file.
func Engine(rules *Rules) service.EngineConfig {
	cfg := service.DefaultEngineConfig()
	cfg.Workers = ChainWorkers()
	cfg.MaxDepth = ChainMaxDepth()
	cfg.Budget = service.Budget{
		MaxPasses: ChainMaxPasses(),
		MaxSteps:  ChainMaxSteps(),
		Timeout:   ChainTimeout(),
	}
	cfg.DecayPerPass = AttentionDecayMode() == DecayPerPass
	cfg.DecayRate = AttentionDecayRate()
	if rules != nil && rules.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = rules.ConfidenceThreshold
	}
	return cfg
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
