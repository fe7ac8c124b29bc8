package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// APIConfig holds the backend address and the paths of the four calls the client makes.
type APIConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UploadPath    string `yaml:"upload_path" mapstructure:"upload_path"`
	ChatPath      string `yaml:"chat_path" mapstructure:"chat_path"`
	LibraryPath   string `yaml:"library_path" mapstructure:"library_path"`
	AnalyticsPath string `yaml:"analytics_path" mapstructure:"analytics_path"`
}

// Timeout returns the per-request transport timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// UploadConfig tunes the progress display of the upload flow.
type UploadConfig struct {
	ResetDelayMillis int `yaml:"reset_delay_ms" mapstructure:"reset_delay_ms"`
	InitialProgress  int `yaml:"initial_progress" mapstructure:"initial_progress"`
	ProgressCap      int `yaml:"progress_cap" mapstructure:"progress_cap"`
}

// ResetDelay is how long a finished upload stays on screen.
func (c UploadConfig) ResetDelay() time.Duration {
	return time.Duration(c.ResetDelayMillis) * time.Millisecond
}

// ChatConfig configures new chat sessions.
type ChatConfig struct {
	Greeting string `yaml:"greeting" mapstructure:"greeting"`
}

// LibraryConfig sizes the library query cache.
type LibraryConfig struct {
	CacheSize    int `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// CacheTTL returns how long a library listing is served from cache.
func (c LibraryConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// AnalyticsConfig holds the periodic refresh schedule in cron syntax.
type AnalyticsConfig struct {
	RefreshSchedule string `yaml:"refresh_schedule" mapstructure:"refresh_schedule"`
}

// Schedule parses RefreshSchedule. An empty schedule disables periodic refresh.
func (c AnalyticsConfig) Schedule() (cron.Schedule, error) {
	if c.RefreshSchedule == "" {
		return nil, nil
	}
	return cron.ParseStandard(c.RefreshSchedule)
}

// LogConfig configures the zap logger and its rotating file.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	Level      string `yaml:"level" mapstructure:"level"`
	Console    bool   `yaml:"console" mapstructure:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DevServerConfig configures the in-memory development backend.
type DevServerConfig struct {
	Addr              string `yaml:"addr" mapstructure:"addr"`
	TopK              int    `yaml:"top_k" mapstructure:"top_k"`
	AnswerSentences   int    `yaml:"answer_sentences" mapstructure:"answer_sentences"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" mapstructure:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences" mapstructure:"overlap_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Upload    UploadConfig    `yaml:"upload" mapstructure:"upload"`
	Chat      ChatConfig      `yaml:"chat" mapstructure:"chat"`
	Library   LibraryConfig   `yaml:"library" mapstructure:"library"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	DevServer DevServerConfig `yaml:"devserver" mapstructure:"devserver"`
}

// Load reads a config from a specified path, overlaid by STUDIO_* environment
// variables. If the file does not exist, defaults (plus environment) are returned.
func Load(path string) (*AppConfig, error) {
	v := newViper()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./studio.yaml first, then ~/.config/studio/config.yaml.
// If neither exists, it writes defaults to ~/.config/studio/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "studio.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the client cannot run with.
func Validate(cfg *AppConfig) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url %q is not an absolute http(s) address", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutSecs <= 0 {
		return fmt.Errorf("api.timeout_secs must be positive, got %d", cfg.API.TimeoutSecs)
	}
	up := cfg.Upload
	if up.InitialProgress <= 0 || up.ProgressCap <= up.InitialProgress || up.ProgressCap >= 100 {
		return fmt.Errorf("upload progress bounds must satisfy 0 < initial (%d) < cap (%d) < 100", up.InitialProgress, up.ProgressCap)
	}
	if _, err := cfg.Analytics.Schedule(); err != nil {
		return fmt.Errorf("analytics.refresh_schedule: %w", err)
	}
	return nil
}

// DefaultUserConfigPath is where LoadDefault keeps the per-user config.
func DefaultUserConfigPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "studio"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	logFile := "studio.log"
	if dir, err := userConfigDir(); err == nil {
		logFile = filepath.Join(dir, "studio.log")
	}
	return &AppConfig{
		API: APIConfig{
			BaseURL:       "http://localhost:8000",
			TimeoutSecs:   60,
			UploadPath:    "/api/upload",
			ChatPath:      "/api/chat",
			LibraryPath:   "/api/library",
			AnalyticsPath: "/api/analytics",
		},
		Upload:    UploadConfig{ResetDelayMillis: 700, InitialProgress: 10, ProgressCap: 95},
		Chat:      ChatConfig{Greeting: "Hi, I'm your research assistant. Ask me anything about your papers!"},
		Library:   LibraryConfig{CacheSize: 16, CacheTTLSecs: 30},
		Analytics: AnalyticsConfig{RefreshSchedule: "@every 30s"},
		Log:       LogConfig{File: logFile, Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 14},
		DevServer: DevServerConfig{Addr: ":8000", TopK: 5, AnswerSentences: 3, SentencesPerChunk: 5, OverlapSentences: 1},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	_ = v.BindEnv("api.base_url", "STUDIO_API_BASE", "NEXT_PUBLIC_API_BASE")
	_ = v.BindEnv("api.timeout_secs", "STUDIO_API_TIMEOUT_SECS")
	_ = v.BindEnv("log.level", "STUDIO_LOG_LEVEL")
	_ = v.BindEnv("log.file", "STUDIO_LOG_FILE")
	_ = v.BindEnv("devserver.addr", "STUDIO_DEVSERVER_ADDR")
	return v
}

// setDefaults registers every key of d so missing keys fall back gracefully.
func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_secs", d.API.TimeoutSecs)
	v.SetDefault("api.upload_path", d.API.UploadPath)
	v.SetDefault("api.chat_path", d.API.ChatPath)
	v.SetDefault("api.library_path", d.API.LibraryPath)
	v.SetDefault("api.analytics_path", d.API.AnalyticsPath)
	v.SetDefault("upload.reset_delay_ms", d.Upload.ResetDelayMillis)
	v.SetDefault("upload.initial_progress", d.Upload.InitialProgress)
	v.SetDefault("upload.progress_cap", d.Upload.ProgressCap)
	v.SetDefault("chat.greeting", d.Chat.Greeting)
	v.SetDefault("library.cache_size", d.Library.CacheSize)
	v.SetDefault("library.cache_ttl_secs", d.Library.CacheTTLSecs)
	v.SetDefault("analytics.refresh_schedule", d.Analytics.RefreshSchedule)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("devserver.addr", d.DevServer.Addr)
	v.SetDefault("devserver.top_k", d.DevServer.TopK)
	v.SetDefault("devserver.answer_sentences", d.DevServer.AnswerSentences)
	v.SetDefault("devserver.sentences_per_chunk", d.DevServer.SentencesPerChunk)
	v.SetDefault("devserver.overlap_sentences", d.DevServer.OverlapSentences)
}
