package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	LLM          LLMConfig          `yaml:"llm"`
	Redis        RedisConfig        `yaml:"redis"`
	Kiyoh        KiyohConfig        `yaml:"kiyoh"`
	Notification NotificationConfig `yaml:"notification"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// PublicURL is the externally reachable dashboard base used in deep links.
	PublicURL string `yaml:"public_url"`
	// CORSOrigins lists the dashboard origins allowed to call the API; "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, sqlite-pure, mysql, postgres
	DSN    string `yaml:"dsn"`
	// SeedDemo loads the sample Kiyoh reviews into an empty database.
	SeedDemo bool `yaml:"seed_demo"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// LLMConfig is the last-resort model used when no LLM configuration row is
// active and the brand has no Gemini key.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai, anthropic, ollama, azure
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KiyohConfig struct {
	BaseURL     string `yaml:"base_url"`
	SyncEnabled bool   `yaml:"sync_enabled"`
	SyncCron    string `yaml:"sync_cron"`
	SyncLimit   int    `yaml:"sync_limit"`
	// AutoProcess enqueues every newly imported review for processing.
	AutoProcess   bool `yaml:"auto_process"`
	StatsCacheTTL int  `yaml:"stats_cache_ttl"` // seconds
	Timeout       int  `yaml:"timeout"`         // seconds
}

type NotificationConfig struct {
	Timeout       int    `yaml:"timeout"` // seconds
	TwilioBaseURL string `yaml:"twilio_base_url"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so partial files keep sane values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8080",
			Mode:        "debug",
			PublicURL:   "http://localhost:3000",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "reviewbuddy.db",
			SeedDemo: true,
		},
		JWT: JWTConfig{
			Secret:     "reviewbuddy-secret-key-change-in-production",
			ExpireHour: 24,
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-1.5-flash",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Kiyoh: KiyohConfig{
			BaseURL:       "https://www.kiyoh.com",
			SyncEnabled:   false,
			SyncCron:      "0 */30 * * * *",
			SyncLimit:     50,
			AutoProcess:   false,
			StatsCacheTTL: 300,
			Timeout:       30,
		},
		Notification: NotificationConfig{
			Timeout:       10,
			TwilioBaseURL: "https://api.twilio.com",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if publicURL := os.Getenv("PUBLIC_URL"); publicURL != "" {
		c.Server.PublicURL = strings.TrimRight(publicURL, "/")
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if v := os.Getenv("SEED_DEMO"); v != "" {
		c.Database.SeedDemo, _ = strconv.ParseBool(v)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		c.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
	}
	// Gemini keys win over the generic key, GEMINI_API_KEY first.
	if apiKey := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); apiKey != "" {
		c.LLM.Provider = "gemini"
		c.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("KIYOH_BASE_URL"); baseURL != "" {
		c.Kiyoh.BaseURL = baseURL
	}
	if v := os.Getenv("KIYOH_SYNC_ENABLED"); v != "" {
		c.Kiyoh.SyncEnabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("KIYOH_AUTO_PROCESS"); v != "" {
		c.Kiyoh.AutoProcess, _ = strconv.ParseBool(v)
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
