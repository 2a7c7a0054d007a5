package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dbconfig "classhub/pkg/database"
)

// EnvPrefix prefixes every environment variable the service reads
const EnvPrefix = "CLASSHUB_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Chat      *ChatConfig      `json:"chat"`
	Lifecycle *LifecycleConfig `json:"lifecycle"`
	Video     *VideoConfig     `json:"video"`
	Log       *LogConfig       `json:"log"`
}

// FUNCTIONAL DISCOVERY: One section drives both sqlite and postgres
type DatabaseConfig struct {
	Driver         string        `json:"driver"`
	DSN            string        `json:"dsn"`
	Timeout        time.Duration `json:"timeout"`
	MaxConnections int           `json:"max_connections"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval  time.Duration `json:"ping_interval"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	MaxFrameBytes int64         `json:"max_frame_bytes"`
}

type AuthConfig struct {
	Secret     string        `json:"secret"`
	Issuer     string        `json:"issuer"`
	TokenTTL   time.Duration `json:"token_ttl"`
	BcryptCost int           `json:"bcrypt_cost"`
}

type ChatConfig struct {
	HistoryTimeout     time.Duration `json:"history_timeout"`
	LookupTimeout      time.Duration `json:"lookup_timeout"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute"`
}

type LifecycleConfig struct {
	EnforceStartWindow  bool          `json:"enforce_start_window"`
	EarlyStartGrace     time.Duration `json:"early_start_grace"`
	DashboardLimit      int           `json:"dashboard_limit"`
	MaintenanceInterval time.Duration `json:"maintenance_interval"`
}

// VideoConfig is optional; without a tenant no video descriptor is served
type VideoConfig struct {
	Domain string `json:"domain"`
	Tenant string `json:"tenant"`
}

type LogConfig struct {
	Env   string `json:"env"` // "production" selects JSON output
	Level string `json:"level"`
}

// FUNCTIONAL DISCOVERY: Defaults run a single-node sqlite deployment out of the box
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Driver:         dbconfig.DriverSQLite,
			DSN:            "./data/classhub.db",
			Timeout:        10 * time.Second,
			MaxConnections: 10,
			AutoMigrate:    true,
		},
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:  30 * time.Second,
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  5 * time.Second,
			MaxFrameBytes: 16 * 1024,
		},
		Auth: &AuthConfig{
			Issuer:     "classhub",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		Chat: &ChatConfig{
			HistoryTimeout:     10 * time.Second,
			LookupTimeout:      5 * time.Second,
			RateLimitPerMinute: 60,
		},
		Lifecycle: &LifecycleConfig{
			EnforceStartWindow:  false,
			EarlyStartGrace:     10 * time.Minute,
			DashboardLimit:      3,
			MaintenanceInterval: 5 * time.Minute,
		},
		Video: &VideoConfig{
			Domain: "8x8.vc",
		},
		Log: &LogConfig{
			Env:   "development",
			Level: "info",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil || c.Auth == nil ||
		c.Chat == nil || c.Lifecycle == nil || c.Video == nil || c.Log == nil {
		return errors.New("all configuration sections are required")
	}

	if c.Database.Driver != dbconfig.DriverSQLite && c.Database.Driver != dbconfig.DriverPostgres {
		return fmt.Errorf("database driver must be %q or %q", dbconfig.DriverSQLite, dbconfig.DriverPostgres)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return errors.New("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return errors.New("database max connections must be positive")
	}

	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	// TECHNICAL DISCOVERY: A pong must be able to arrive before the read deadline expires
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.MaxFrameBytes <= 0 {
		return errors.New("WebSocket max frame size must be positive")
	}

	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth token TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return errors.New("auth bcrypt cost must be between 4 and 31")
	}

	if c.Chat.HistoryTimeout <= 0 || c.Chat.LookupTimeout <= 0 {
		return errors.New("chat timeouts must be positive")
	}
	if c.Chat.RateLimitPerMinute <= 0 {
		return errors.New("chat rate limit must be positive")
	}

	if c.Lifecycle.EarlyStartGrace < 0 {
		return errors.New("early start grace cannot be negative")
	}
	if c.Lifecycle.DashboardLimit <= 0 {
		return errors.New("dashboard limit must be positive")
	}
	if c.Lifecycle.MaintenanceInterval <= 0 {
		return errors.New("maintenance interval must be positive")
	}

	if c.Video.Tenant != "" && strings.TrimSpace(c.Video.Domain) == "" {
		return errors.New("video domain is required when a tenant is set")
	}

	switch c.Log.Env {
	case "development", "production":
	default:
		return fmt.Errorf("log env must be development or production, got %q", c.Log.Env)
	}
	return nil
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win, and missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Malformed values are reported instead of silently falling back to defaults
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(c *Config) error {
	e := &envReader{}

	e.text("DATABASE_DRIVER", &c.Database.Driver)
	e.text("DATABASE_DSN", &c.Database.DSN)
	e.duration("DATABASE_TIMEOUT", &c.Database.Timeout)
	e.integer("DATABASE_MAX_CONNECTIONS", &c.Database.MaxConnections)
	e.flag("DATABASE_AUTO_MIGRATE", &c.Database.AutoMigrate)

	e.text("HTTP_HOST", &c.HTTP.Host)
	e.integer("HTTP_PORT", &c.HTTP.Port)
	e.duration("HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	e.duration("HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)
	e.duration("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)

	e.duration("WEBSOCKET_PING_INTERVAL", &c.WebSocket.PingInterval)
	e.duration("WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	e.duration("WEBSOCKET_WRITE_TIMEOUT", &c.WebSocket.WriteTimeout)
	e.integer64("WEBSOCKET_MAX_FRAME_BYTES", &c.WebSocket.MaxFrameBytes)

	e.text("AUTH_SECRET", &c.Auth.Secret)
	e.text("AUTH_ISSUER", &c.Auth.Issuer)
	e.duration("AUTH_TOKEN_TTL", &c.Auth.TokenTTL)
	e.integer("AUTH_BCRYPT_COST", &c.Auth.BcryptCost)

	e.duration("CHAT_HISTORY_TIMEOUT", &c.Chat.HistoryTimeout)
	e.duration("CHAT_LOOKUP_TIMEOUT", &c.Chat.LookupTimeout)
	e.integer("CHAT_RATE_LIMIT_PER_MINUTE", &c.Chat.RateLimitPerMinute)

	e.flag("LIFECYCLE_ENFORCE_START_WINDOW", &c.Lifecycle.EnforceStartWindow)
	e.duration("LIFECYCLE_EARLY_START_GRACE", &c.Lifecycle.EarlyStartGrace)
	e.integer("LIFECYCLE_DASHBOARD_LIMIT", &c.Lifecycle.DashboardLimit)
	e.duration("LIFECYCLE_MAINTENANCE_INTERVAL", &c.Lifecycle.MaintenanceInterval)

	e.text("VIDEO_DOMAIN", &c.Video.Domain)
	e.text("VIDEO_TENANT", &c.Video.Tenant)

	e.text("LOG_ENV", &c.Log.Env)
	e.text("LOG_LEVEL", &c.Log.Level)

	return e.err
}

// envReader records the first malformed variable
type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, v string, err error) {
	e.err = fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, v, err)
}

func (e *envReader) text(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) integer64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) flag(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings;
// absent fields keep the value already loaded
type ConfigFile struct {
	Database *struct {
		Driver         string `json:"driver"`
		DSN            string `json:"dsn"`
		Timeout        string `json:"timeout"`
		MaxConnections int    `json:"max_connections"`
		AutoMigrate    *bool  `json:"auto_migrate"`
	} `json:"database"`
	HTTP *struct {
		Host            string `json:"host"`
		Port            int    `json:"port"`
		ReadTimeout     string `json:"read_timeout"`
		WriteTimeout    string `json:"write_timeout"`
		ShutdownTimeout string `json:"shutdown_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval  string `json:"ping_interval"`
		ReadTimeout   string `json:"read_timeout"`
		WriteTimeout  string `json:"write_timeout"`
		MaxFrameBytes int64  `json:"max_frame_bytes"`
	} `json:"websocket"`
	Auth *struct {
		Secret     string `json:"secret"`
		Issuer     string `json:"issuer"`
		TokenTTL   string `json:"token_ttl"`
		BcryptCost int    `json:"bcrypt_cost"`
	} `json:"auth"`
	Chat *struct {
		HistoryTimeout     string `json:"history_timeout"`
		LookupTimeout      string `json:"lookup_timeout"`
		RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	} `json:"chat"`
	Lifecycle *struct {
		EnforceStartWindow  *bool  `json:"enforce_start_window"`
		EarlyStartGrace     string `json:"early_start_grace"`
		DashboardLimit      int    `json:"dashboard_limit"`
		MaintenanceInterval string `json:"maintenance_interval"`
	} `json:"lifecycle"`
	Video *VideoConfig `json:"video"`
	Log   *LogConfig   `json:"log"`
}

// LoadFromFile reads a JSON file over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f ConfigFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	p := &fileParser{}
	if d := f.Database; d != nil {
		setString(&c.Database.Driver, d.Driver)
		setString(&c.Database.DSN, d.DSN)
		p.duration("database.timeout", d.Timeout, &c.Database.Timeout)
		setInt(&c.Database.MaxConnections, d.MaxConnections)
		setBool(&c.Database.AutoMigrate, d.AutoMigrate)
	}
	if h := f.HTTP; h != nil {
		setString(&c.HTTP.Host, h.Host)
		setInt(&c.HTTP.Port, h.Port)
		p.duration("http.read_timeout", h.ReadTimeout, &c.HTTP.ReadTimeout)
		p.duration("http.write_timeout", h.WriteTimeout, &c.HTTP.WriteTimeout)
		p.duration("http.shutdown_timeout", h.ShutdownTimeout, &c.HTTP.ShutdownTimeout)
	}
	if w := f.WebSocket; w != nil {
		p.duration("websocket.ping_interval", w.PingInterval, &c.WebSocket.PingInterval)
		p.duration("websocket.read_timeout", w.ReadTimeout, &c.WebSocket.ReadTimeout)
		p.duration("websocket.write_timeout", w.WriteTimeout, &c.WebSocket.WriteTimeout)
		if w.MaxFrameBytes > 0 {
			c.WebSocket.MaxFrameBytes = w.MaxFrameBytes
		}
	}
	if a := f.Auth; a != nil {
		setString(&c.Auth.Secret, a.Secret)
		setString(&c.Auth.Issuer, a.Issuer)
		p.duration("auth.token_ttl", a.TokenTTL, &c.Auth.TokenTTL)
		setInt(&c.Auth.BcryptCost, a.BcryptCost)
	}
	if ch := f.Chat; ch != nil {
		p.duration("chat.history_timeout", ch.HistoryTimeout, &c.Chat.HistoryTimeout)
		p.duration("chat.lookup_timeout", ch.LookupTimeout, &c.Chat.LookupTimeout)
		setInt(&c.Chat.RateLimitPerMinute, ch.RateLimitPerMinute)
	}
	if l := f.Lifecycle; l != nil {
		setBool(&c.Lifecycle.EnforceStartWindow, l.EnforceStartWindow)
		p.duration("lifecycle.early_start_grace", l.EarlyStartGrace, &c.Lifecycle.EarlyStartGrace)
		setInt(&c.Lifecycle.DashboardLimit, l.DashboardLimit)
		p.duration("lifecycle.maintenance_interval", l.MaintenanceInterval, &c.Lifecycle.MaintenanceInterval)
	}
	if v := f.Video; v != nil {
		setString(&c.Video.Domain, v.Domain)
		setString(&c.Video.Tenant, v.Tenant)
	}
	if l := f.Log; l != nil {
		setString(&c.Log.Env, l.Env)
		setString(&c.Log.Level, l.Level)
	}

	if p.err != nil {
		return fmt.Errorf("config file %s: %w", path, p.err)
	}
	return nil
}

type fileParser struct {
	err error
}

func (p *fileParser) duration(field, v string, dst *time.Duration) {
	if p.err != nil || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", field, v, err)
		return
	}
	*dst = d
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// Unlike a missing .env, a named config file that cannot be read is an error
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// DatabaseSettings converts the section into the driver configuration
func (c *Config) DatabaseSettings() *dbconfig.Config {
	db := dbconfig.DefaultConfig()
	db.Driver = c.Database.Driver
	db.DSN = c.Database.DSN
	db.MaxConnections = c.Database.MaxConnections
	return db
}
