// Package config provides configuration management for cortexvoice.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
// It is loaded from ~/.cortexvoice/config.yaml and can be overridden by
// CORTEXVOICE_* environment variables.
type Config struct {
	Voice        VoiceConfig        `mapstructure:"voice" yaml:"voice"`
	STT          STTConfig          `mapstructure:"stt" yaml:"stt"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	Router       RouterConfig       `mapstructure:"router" yaml:"router"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler" yaml:"scheduler"`
	Data         DataConfig         `mapstructure:"data" yaml:"data"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// VoiceConfig configures wake/stop phrases and the activation cycle.
type VoiceConfig struct {
	// AssistantName is substituted into acknowledgement phrases
	AssistantName string `mapstructure:"assistant_name" yaml:"assistant_name"`
	WakePhrase    string `mapstructure:"wake_phrase" yaml:"wake_phrase"`
	StopPhrase    string `mapstructure:"stop_phrase" yaml:"stop_phrase"`
	// PhraseTolerance is the fraction of a wake/stop phrase that may be misheard (0-1)
	PhraseTolerance float64 `mapstructure:"phrase_tolerance" yaml:"phrase_tolerance"`
	// MaxUtterance bounds a single command capture
	MaxUtterance time.Duration `mapstructure:"max_utterance" yaml:"max_utterance"`
	// MaxListenAttempts is how often silence re-enters listening before giving up
	MaxListenAttempts int `mapstructure:"max_listen_attempts" yaml:"max_listen_attempts"`
	// ContinuousMode keeps listening after a response until a stop intent
	ContinuousMode bool   `mapstructure:"continuous_mode" yaml:"continuous_mode"`
	ErrorMessage   string `mapstructure:"error_message" yaml:"error_message"`
}

// STTConfig configures the hybrid transcription selector and its backends.
type STTConfig struct {
	UseOnline      bool          `mapstructure:"use_online" yaml:"use_online"`
	ProbeURL       string        `mapstructure:"probe_url" yaml:"probe_url"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ProbeCacheTTL  time.Duration `mapstructure:"probe_cache_ttl" yaml:"probe_cache_ttl"`
	OnlineTimeout  time.Duration `mapstructure:"online_timeout" yaml:"online_timeout"`
	OfflineTimeout time.Duration `mapstructure:"offline_timeout" yaml:"offline_timeout"`
	OfflineRetries int           `mapstructure:"offline_retries" yaml:"offline_retries"`
	SampleRate     int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	// Online backend (OpenAI-compatible transcription endpoint)
	WhisperURL   string `mapstructure:"whisper_url" yaml:"whisper_url"`
	WhisperModel string `mapstructure:"whisper_model" yaml:"whisper_model"`
	APIKey       string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Language     string `mapstructure:"language" yaml:"language"`
	// Offline backend (vosk-server websocket)
	VoskURL string `mapstructure:"vosk_url" yaml:"vosk_url"`
}

// ConversationConfig configures conversation history retention.
type ConversationConfig struct {
	MaxHistory int `mapstructure:"max_history" yaml:"max_history"`
}

// RouterConfig configures command dispatch.
type RouterConfig struct {
	ConfirmWindow time.Duration `mapstructure:"confirm_window" yaml:"confirm_window"`
	SearchURL     string        `mapstructure:"search_url" yaml:"search_url"`
}

// SchedulerConfig configures the background trigger scan.
type SchedulerConfig struct {
	ScanInterval time.Duration `mapstructure:"scan_interval" yaml:"scan_interval"`
}

// DataConfig configures durable storage.
type DataConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// MetricsConfig configures the prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	base := defaultBaseDir()
	return &Config{
		Voice: VoiceConfig{
			AssistantName:     "Strom",
			WakePhrase:        "hey strom",
			StopPhrase:        "stop strom",
			PhraseTolerance:   0.5,
			MaxUtterance:      10 * time.Second,
			MaxListenAttempts: 2,
			ContinuousMode:    false,
			ErrorMessage:      "Sorry, I encountered an error.",
		},
		STT: STTConfig{
			UseOnline:      true,
			ProbeURL:       "https://www.google.com",
			ProbeTimeout:   3 * time.Second,
			ProbeCacheTTL:  10 * time.Second,
			OnlineTimeout:  30 * time.Second,
			OfflineTimeout: 15 * time.Second,
			OfflineRetries: 0,
			SampleRate:     16000,
			WhisperURL:     "https://api.openai.com/v1/audio/transcriptions",
			WhisperModel:   "whisper-1",
			Language:       "en",
			VoskURL:        "ws://127.0.0.1:2700",
		},
		Conversation: ConversationConfig{
			MaxHistory: 50,
		},
		Router: RouterConfig{
			ConfirmWindow: 30 * time.Second,
			SearchURL:     "https://www.google.com/search?q=",
		},
		Scheduler: SchedulerConfig{
			ScanInterval: 30 * time.Second,
		},
		Data: DataConfig{
			Dir: base,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Dir:     filepath.Join(base, "logs"),
			Console: true,
		},
	}
}

// Load reads configuration from path (or the default locations when empty)
// and applies environment overrides. A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultBaseDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CORTEXVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Voice.WakePhrase) == "" {
		return errors.New("config: voice.wake_phrase must not be empty")
	}
	if c.Voice.PhraseTolerance < 0 || c.Voice.PhraseTolerance > 1 {
		return fmt.Errorf("config: voice.phrase_tolerance %.2f out of range [0,1]", c.Voice.PhraseTolerance)
	}
	if c.Conversation.MaxHistory <= 0 {
		return fmt.Errorf("config: conversation.max_history must be positive, got %d", c.Conversation.MaxHistory)
	}
	if c.Scheduler.ScanInterval < time.Second {
		return fmt.Errorf("config: scheduler.scan_interval must be at least 1s, got %s", c.Scheduler.ScanInterval)
	}
	if c.STT.OfflineRetries < 0 {
		return fmt.Errorf("config: stt.offline_retries must not be negative")
	}
	return nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// DefaultPath returns ~/.cortexvoice/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultBaseDir(), "config.yaml")
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cortexvoice"
	}
	return filepath.Join(home, ".cortexvoice")
}

// setDefaults registers every default key so env overrides apply even when
// the key is absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("voice.assistant_name", cfg.Voice.AssistantName)
	v.SetDefault("voice.wake_phrase", cfg.Voice.WakePhrase)
	v.SetDefault("voice.stop_phrase", cfg.Voice.StopPhrase)
	v.SetDefault("voice.phrase_tolerance", cfg.Voice.PhraseTolerance)
	v.SetDefault("voice.max_utterance", cfg.Voice.MaxUtterance)
	v.SetDefault("voice.max_listen_attempts", cfg.Voice.MaxListenAttempts)
	v.SetDefault("voice.continuous_mode", cfg.Voice.ContinuousMode)
	v.SetDefault("voice.error_message", cfg.Voice.ErrorMessage)

	v.SetDefault("stt.use_online", cfg.STT.UseOnline)
	v.SetDefault("stt.probe_url", cfg.STT.ProbeURL)
	v.SetDefault("stt.probe_timeout", cfg.STT.ProbeTimeout)
	v.SetDefault("stt.probe_cache_ttl", cfg.STT.ProbeCacheTTL)
	v.SetDefault("stt.online_timeout", cfg.STT.OnlineTimeout)
	v.SetDefault("stt.offline_timeout", cfg.STT.OfflineTimeout)
	v.SetDefault("stt.offline_retries", cfg.STT.OfflineRetries)
	v.SetDefault("stt.sample_rate", cfg.STT.SampleRate)
	v.SetDefault("stt.whisper_url", cfg.STT.WhisperURL)
	v.SetDefault("stt.whisper_model", cfg.STT.WhisperModel)
	v.SetDefault("stt.api_key", cfg.STT.APIKey)
	v.SetDefault("stt.language", cfg.STT.Language)
	v.SetDefault("stt.vosk_url", cfg.STT.VoskURL)

	v.SetDefault("conversation.max_history", cfg.Conversation.MaxHistory)
	v.SetDefault("router.confirm_window", cfg.Router.ConfirmWindow)
	v.SetDefault("router.search_url", cfg.Router.SearchURL)
	v.SetDefault("scheduler.scan_interval", cfg.Scheduler.ScanInterval)
	v.SetDefault("data.dir", cfg.Data.Dir)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.dir", cfg.Logging.Dir)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}
