package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	Secret   string `mapstructure:"secret"`
	LogLevel string `mapstructure:"log_level"`

	SignalingURL string `mapstructure:"signaling_url"`
	ClientID     string `mapstructure:"client_id"`
	UserID       string `mapstructure:"user_id"`
	Nick         string `mapstructure:"nick"`

	ICEServers             []string      `mapstructure:"ice_servers"`
	ICEDisconnectedTimeout time.Duration `mapstructure:"ice_disconnected_timeout"`
	ICEFailedTimeout       time.Duration `mapstructure:"ice_failed_timeout"`
	ICEKeepalive           time.Duration `mapstructure:"ice_keepalive"`

	NextDebounce       time.Duration `mapstructure:"next_debounce"`
	ToggleDebounce     time.Duration `mapstructure:"toggle_debounce"`
	DeclineSuppression time.Duration `mapstructure:"decline_suppression"`
	RestartCooldown    time.Duration `mapstructure:"restart_cooldown"`
	RestartBudget      int           `mapstructure:"restart_budget"`
	InviteTimeout      time.Duration `mapstructure:"invite_timeout"`
	DedupeTTL          time.Duration `mapstructure:"dedupe_ttl"`

	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	InviteRateLimit    int           `mapstructure:"invite_rate_limit"`
	InviteRateInterval time.Duration `mapstructure:"invite_rate_interval"`

	RecordDir string `mapstructure:"record_dir"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). A missing
// file is not an error; defaults and DUET_* environment variables apply.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("DUET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.Nick == "" {
		cfg.Nick = "guest"
	}
	me, err := domain.NewUser(domain.UserID(cfg.UserID), cfg.Nick)
	if err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}
	cfg.UserID, cfg.Nick = string(me.ID), me.Nick
	if cfg.Secret == "" {
		log.Warn().Str("module", "config").Msg("no secret set, viewer cookies will not survive a restart")
		cfg.Secret = uuid.NewString()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("signaling", cfg.SignalingURL).Str("client", cfg.ClientID).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("signaling_url", "ws://localhost:8080/ws")
	v.SetDefault("client_id", "")
	v.SetDefault("user_id", "")
	v.SetDefault("nick", "")

	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice_disconnected_timeout", "5s")
	v.SetDefault("ice_failed_timeout", "25s")
	v.SetDefault("ice_keepalive", "2s")

	v.SetDefault("next_debounce", "2s")
	v.SetDefault("toggle_debounce", "500ms")
	v.SetDefault("decline_suppression", "12s")
	v.SetDefault("restart_cooldown", "10s")
	v.SetDefault("restart_budget", 3)
	v.SetDefault("invite_timeout", "30s")
	v.SetDefault("dedupe_ttl", "10s")

	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("invite_rate_limit", 5)
	v.SetDefault("invite_rate_interval", "10s")

	v.SetDefault("record_dir", "")
}

func (c *Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SignalingURL == "" {
		errs = append(errs, errors.New("signaling_url is required"))
	}
	if c.RestartBudget < 0 {
		errs = append(errs, errors.New("restart_budget must not be negative"))
	}
	if c.InviteRateLimit <= 0 || c.InviteRateInterval <= 0 {
		errs = append(errs, errors.New("invite rate limit and interval must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level is the configured zerolog level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
