package config

import (
	"os"
	"path/filepath"
	"time"
)

// Settings holds the runtime configuration for the Connex runtime.
// Values come from defaults, then environment variables, then the
// persistent system_config store (database values win).
type Settings struct {
	// DataDir is the root for databases and dynamic component storage.
	DataDir string `yaml:"data_dir"`

	// SkillDBPath is the SQLite file holding skill metadata, embeddings
	// and per-skill configs.
	SkillDBPath string `yaml:"skill_db_path"`

	// StoreDBPath is the SQLite file holding system config, notable info,
	// perceptions, long-term memory and the skill-request log.
	StoreDBPath string `yaml:"store_db_path"`

	// SkillDirs are extra directories scanned for dynamic skills.
	SkillDirs []string `yaml:"skill_dirs"`

	// PerceptionDirs are extra directories scanned for dynamic perception modules.
	PerceptionDirs []string `yaml:"perception_dirs"`

	// TimeEventsPath is the JSON file polled by the time sensor.
	TimeEventsPath string `yaml:"time_events_path"`

	// ActionTimeout is the default per-action execution timeout.
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// SelfCorrection enables the corrector retry path on action failure.
	SelfCorrection bool `yaml:"self_correction"`

	// ShortTermCapacity bounds the short-term conversation ring.
	ShortTermCapacity int `yaml:"short_term_capacity"`

	// RecallThreshold is the minimum cosine similarity for long-term recall.
	RecallThreshold float64 `yaml:"recall_threshold"`

	// ServerAddr is the HTTP/SSE listen address.
	ServerAddr string `yaml:"server_addr"`

	// JWTSecret enables bearer auth on the server when non-empty.
	JWTSecret string `yaml:"jwt_secret"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is "simple" or "verbose".
	LogFormat string `yaml:"log_format"`

	// SkillReviewInterval is the cadence of the background skill-review loop.
	SkillReviewInterval time.Duration `yaml:"skill_review_interval"`

	// SkillRegistryURL is the remote skill registry queried by the review loop.
	SkillRegistryURL string `yaml:"skill_registry_url"`
}

// DefaultSettings returns settings with built-in defaults applied,
// honoring CONNEX_DATA_DIR and CONNEX_* overrides from the environment.
func DefaultSettings() *Settings {
	dataDir := os.Getenv("CONNEX_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".connex")
	}

	s := &Settings{
		DataDir:             dataDir,
		SkillDBPath:         filepath.Join(dataDir, "skills.db"),
		StoreDBPath:         filepath.Join(dataDir, "connex.db"),
		TimeEventsPath:      filepath.Join(dataDir, "time_events.json"),
		ActionTimeout:       60 * time.Second,
		SelfCorrection:      true,
		ShortTermCapacity:   10,
		RecallThreshold:     0.35,
		ServerAddr:          ":8283",
		LogLevel:            "info",
		LogFormat:           "simple",
		SkillReviewInterval: 10 * time.Minute,
	}

	if v := os.Getenv("CONNEX_SERVER_ADDR"); v != "" {
		s.ServerAddr = v
	}
	if v := os.Getenv("CONNEX_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("CONNEX_JWT_SECRET"); v != "" {
		s.JWTSecret = v
	}
	if v := os.Getenv("CONNEX_TIME_EVENTS"); v != "" {
		s.TimeEventsPath = v
	}
	if v := os.Getenv("CONNEX_SKILL_REGISTRY_URL"); v != "" {
		s.SkillRegistryURL = v
	}
	if v := os.Getenv("CONNEX_SKILL_DIRS"); v != "" {
		s.SkillDirs = filepath.SplitList(v)
	}

	return s
}

// EnsureDataDir creates the data directory tree if missing.
func (s *Settings) EnsureDataDir() error {
	for _, dir := range []string{s.DataDir, filepath.Join(s.DataDir, "skills"), filepath.Join(s.DataDir, "perceptions")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
