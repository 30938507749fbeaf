package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TrackerConfig holds credentials and field mapping for the issue tracker API.
// StoryPointsField and EpicNameField are instance-specific custom field keys;
// they differ between tracker deployments and must never be hardcoded.
type TrackerConfig struct {
	BaseURL          string `yaml:"base_url"`
	Email            string `yaml:"email"`
	APIToken         string `yaml:"api_token"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	StoryPointsField string `yaml:"story_points_field"`
	EpicNameField    string `yaml:"epic_name_field"`
	UserLookupLimit  int    `yaml:"user_lookup_limit"`
}

// Timeout returns the tracker HTTP timeout as a duration
func (t TrackerConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings for import job history.
// An empty DSN disables history persistence.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds Redis connection settings for async import job tracking.
// An empty address disables the async import endpoints.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CORSConfig holds allowed browser origins for the dashboard frontend
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file and applies defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads config from file then applies environment overrides.
// A .env file in the working directory is loaded first if present.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (ignore errors - file is optional)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if baseURL := os.Getenv("TRACKER_BASE_URL"); baseURL != "" {
		cfg.Tracker.BaseURL = baseURL
	}
	if email := os.Getenv("TRACKER_EMAIL"); email != "" {
		cfg.Tracker.Email = email
	}
	if token := os.Getenv("TRACKER_API_TOKEN"); token != "" {
		cfg.Tracker.APIToken = token
	}
	if field := os.Getenv("TRACKER_STORY_POINTS_FIELD"); field != "" {
		cfg.Tracker.StoryPointsField = field
	}
	if field := os.Getenv("TRACKER_EPIC_NAME_FIELD"); field != "" {
		cfg.Tracker.EpicNameField = field
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Tracker.TimeoutSeconds == 0 {
		cfg.Tracker.TimeoutSeconds = 30
	}
	// Jira Cloud classic-project defaults; overridable per deployment
	if cfg.Tracker.StoryPointsField == "" {
		cfg.Tracker.StoryPointsField = "customfield_10016"
	}
	if cfg.Tracker.EpicNameField == "" {
		cfg.Tracker.EpicNameField = "customfield_10011"
	}
	if cfg.Tracker.UserLookupLimit == 0 {
		cfg.Tracker.UserLookupLimit = 8
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
}

// Validate checks that required tracker settings are present
func (cfg *Config) Validate() error {
	if cfg.Tracker.BaseURL == "" {
		return fmt.Errorf("tracker.base_url is required")
	}
	if cfg.Tracker.Email == "" {
		return fmt.Errorf("tracker.email is required")
	}
	if cfg.Tracker.APIToken == "" {
		return fmt.Errorf("tracker.api_token is required")
	}
	return nil
}
