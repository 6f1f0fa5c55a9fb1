// Package config resolves desktop and server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file
// (VOCHAT_CONFIG), then a .env file, then environment variables. Invalid
// numeric values fall back to their defaults rather than failing startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vochat/internal/domain"
	"vochat/internal/events"
	"vochat/internal/llm"
	"vochat/internal/observability/logging"
	"vochat/internal/observability/tracing"
)

// Desktop is the configuration of the dictation client.
type Desktop struct {
	Log      logging.Config `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Audio    AudioConfig    `yaml:"audio"`
	Rules    RulesConfig    `yaml:"rules"`
	Session  SessionConfig  `yaml:"session"`
	Hotkey   HotkeyConfig   `yaml:"hotkey"`
	Insert   InsertConfig   `yaml:"insert"`
}

// APIConfig points the desktop client at the vochat server.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" env:"VOCHAT_API_URL"`
	Token     string        `yaml:"token" env:"VOCHAT_API_TOKEN"`
	ProfileID string        `yaml:"profile_id" env:"VOCHAT_PROFILE_ID"`
	Timeout   time.Duration `yaml:"timeout" env:"VOCHAT_API_TIMEOUT"`
}

// Configured reports whether a server is set up.
func (c APIConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.Token) != ""
}

type DeepgramConfig struct {
	// APIKey enables direct streaming without the server.
	APIKey      string `yaml:"api_key" env:"DEEPGRAM_API_KEY"`
	APIBaseURL  string `yaml:"api_base" env:"DEEPGRAM_API_BASE"`
	Model       string `yaml:"model" env:"DEEPGRAM_MODEL"`
	Language    string `yaml:"language" env:"DEEPGRAM_LANGUAGE"`
	SmartFormat bool   `yaml:"smart_format" env:"DEEPGRAM_SMART_FORMAT"`
	Punctuate   bool   `yaml:"punctuate" env:"DEEPGRAM_PUNCTUATE"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command" env:"VOCHAT_FFMPEG_COMMAND"`
	InputFormat     string `yaml:"input_format" env:"VOCHAT_AUDIO_INPUT_FORMAT"`
	InputDevice     string `yaml:"input_device" env:"VOCHAT_AUDIO_INPUT_DEVICE"`
	SampleRate      int    `yaml:"sample_rate" env:"VOCHAT_SAMPLE_RATE"`
	Channels        int    `yaml:"channels" env:"VOCHAT_CHANNELS"`
}

type RulesConfig struct {
	Path           string `yaml:"path" env:"VOCHAT_RULES_FILE"`
	IterationLimit int    `yaml:"iteration_limit" env:"VOCHAT_RULE_ITERATION_LIMIT"`
}

type SessionConfig struct {
	Mode           domain.DeliveryMode `yaml:"mode" env:"VOCHAT_SESSION_MODE"`
	HoldThreshold  time.Duration       `yaml:"hold_threshold" env:"VOCHAT_HOLD_THRESHOLD"`
	DisplayHold    time.Duration       `yaml:"display_hold" env:"VOCHAT_DISPLAY_HOLD"`
	ErrorHold      time.Duration       `yaml:"error_hold" env:"VOCHAT_ERROR_HOLD"`
	CloseTimeout   time.Duration       `yaml:"close_timeout" env:"VOCHAT_CLOSE_TIMEOUT"`
	RefineAttempts int                 `yaml:"refine_attempts" env:"VOCHAT_REFINE_ATTEMPTS"`
	RefineBackoff  time.Duration       `yaml:"refine_backoff" env:"VOCHAT_REFINE_BACKOFF"`
}

type HotkeyConfig struct {
	Combo string `yaml:"combo" env:"VOCHAT_HOTKEY"`
}

// InsertConfig controls how text reaches the focused window.
type InsertConfig struct {
	SimulatePaste bool          `yaml:"simulate_paste" env:"VOCHAT_SIMULATE_PASTE"`
	Settle        time.Duration `yaml:"settle" env:"VOCHAT_PASTE_SETTLE"`
	Notifications bool          `yaml:"notifications" env:"VOCHAT_NOTIFICATIONS"`
}

// Server is the configuration of the refinement server.
type Server struct {
	Log      logging.Config `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Store    StoreConfig    `yaml:"store"`
	Quota    QuotaConfig    `yaml:"quota"`
	Auth     AuthConfig     `yaml:"auth"`
	STT      STTConfig      `yaml:"stt"`
	LLM      llm.Config     `yaml:"llm"`
	Kafka    events.Config  `yaml:"kafka"`
	Tracing  tracing.Config `yaml:"tracing"`
	Shutdown time.Duration  `yaml:"shutdown_timeout" env:"VOCHAT_SHUTDOWN_TIMEOUT"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr" env:"VOCHAT_HTTP_ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"VOCHAT_HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"VOCHAT_HTTP_WRITE_TIMEOUT"`
}

type StoreConfig struct {
	Path string `yaml:"path" env:"VOCHAT_DB_PATH"`
}

type QuotaConfig struct {
	FreeWeeklyWords int      `yaml:"free_weekly_words" env:"VOCHAT_FREE_WEEKLY_WORDS"`
	ProAccounts     []string `yaml:"pro_accounts" env:"VOCHAT_PRO_ACCOUNTS" envSeparator:","`
}

// AuthConfig maps bearer tokens to account ids.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens" env:"VOCHAT_API_TOKENS"`
}

type STTConfig struct {
	DeepgramKey string        `yaml:"deepgram_key" env:"DEEPGRAM_API_KEY"`
	TokenTTL    time.Duration `yaml:"token_ttl" env:"VOCHAT_STT_TOKEN_TTL"`
}

// DefaultDesktop returns the desktop defaults.
func DefaultDesktop() Desktop {
	return Desktop{
		Log: logging.Config{Level: "info", Format: "console"},
		API: APIConfig{Timeout: 20 * time.Second},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			Language:    domain.DefaultLanguage,
			SmartFormat: true,
			Punctuate:   true,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			SampleRate:      16000,
			Channels:        1,
		},
		Rules: RulesConfig{IterationLimit: 30},
		Session: SessionConfig{
			Mode:           domain.DeliveryNormalizeThenInsert,
			HoldThreshold:  200 * time.Millisecond,
			DisplayHold:    2 * time.Second,
			ErrorHold:      3 * time.Second,
			CloseTimeout:   5 * time.Second,
			RefineAttempts: 3,
			RefineBackoff:  250 * time.Millisecond,
		},
		Hotkey: HotkeyConfig{Combo: "ctrl+shift+d"},
		Insert: InsertConfig{
			SimulatePaste: true,
			Settle:        80 * time.Millisecond,
			Notifications: true,
		},
	}
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Log: logging.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Store:    StoreConfig{Path: filepath.Join("data", "vochat.db")},
		Quota:    QuotaConfig{FreeWeeklyWords: 2000},
		STT:      STTConfig{TokenTTL: time.Hour},
		LLM:      llm.Config{Model: llm.DefaultModel, Timeout: llm.DefaultTimeout},
		Kafka:    events.Config{Topic: events.DefaultTopic},
		Tracing:  tracing.DefaultConfig(),
		Shutdown: 10 * time.Second,
	}
}

// LoadDesktop resolves the desktop configuration.
func LoadDesktop() (Desktop, error) {
	cfg := DefaultDesktop()
	if err := load(&cfg); err != nil {
		return Desktop{}, err
	}

	if cfg.Rules.Path == "" {
		path, err := defaultRulesPath()
		if err != nil {
			return Desktop{}, err
		}
		cfg.Rules.Path = path
	}
	cfg.normalize()
	return cfg, nil
}

// LoadServer resolves and validates the server configuration.
func LoadServer() (Server, error) {
	cfg := DefaultServer()
	if err := load(&cfg); err != nil {
		return Server{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c *Desktop) normalize() {
	def := DefaultDesktop()
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = def.Audio.Channels
	}
	if c.Audio.RecorderCommand == "" {
		c.Audio.RecorderCommand = def.Audio.RecorderCommand
	}
	if c.Rules.IterationLimit <= 0 {
		c.Rules.IterationLimit = def.Rules.IterationLimit
	}
	if !c.Session.Mode.Valid() {
		c.Session.Mode = def.Session.Mode
	}
	positive(&c.Session.HoldThreshold, def.Session.HoldThreshold)
	positive(&c.Session.DisplayHold, def.Session.DisplayHold)
	positive(&c.Session.ErrorHold, def.Session.ErrorHold)
	positive(&c.Session.CloseTimeout, def.Session.CloseTimeout)
	positive(&c.Session.RefineBackoff, def.Session.RefineBackoff)
	positive(&c.API.Timeout, def.API.Timeout)
	if c.Insert.Settle < 0 {
		c.Insert.Settle = def.Insert.Settle
	}
	if c.Session.RefineAttempts <= 0 {
		c.Session.RefineAttempts = def.Session.RefineAttempts
	}
	if strings.TrimSpace(c.Hotkey.Combo) == "" {
		c.Hotkey.Combo = def.Hotkey.Combo
	}
}

func (c *Server) normalize() {
	def := DefaultServer()
	if c.Quota.FreeWeeklyWords <= 0 {
		c.Quota.FreeWeeklyWords = def.Quota.FreeWeeklyWords
	}
	positive(&c.HTTP.ReadTimeout, def.HTTP.ReadTimeout)
	positive(&c.HTTP.WriteTimeout, def.HTTP.WriteTimeout)
	positive(&c.STT.TokenTTL, def.STT.TokenTTL)
	positive(&c.LLM.Timeout, def.LLM.Timeout)
	positive(&c.Shutdown, def.Shutdown)
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = def.Kafka.Topic
	}
}

// Validate reports settings the server cannot start without.
func (c Server) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if len(c.Auth.Tokens) == 0 {
		errs = append(errs, errors.New("auth.tokens must map at least one token to an account"))
	}
	return errors.Join(errs...)
}

func load(target any) error {
	if path := strings.TrimSpace(os.Getenv("VOCHAT_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	envFile := strings.TrimSpace(os.Getenv("VOCHAT_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %q: %w", envFile, err)
	}

	if err := env.ParseWithFuncs(target, lenientParsers()); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// lenientParsers turn malformed numbers into zero so normalization restores
// the default.
func lenientParsers() map[reflect.Type]env.ParserFunc {
	return map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(0): func(v string) (interface{}, error) {
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return 0, nil
			}
			return parsed, nil
		},
		reflect.TypeOf(time.Duration(0)): func(v string) (interface{}, error) {
			parsed, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return time.Duration(0), nil
			}
			return parsed, nil
		},
	}
}

func defaultRulesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return firstExisting(
		filepath.Join(home, ".config", "vochat", "substitutions.rules"),
		filepath.Join(home, ".config", "hypr", "whisper-substitutions.rules"),
	), nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func positive(d *time.Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = fallback
	}
}
