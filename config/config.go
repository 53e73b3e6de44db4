package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vishpuri/FRED/errors"
	"gopkg.in/yaml.v3"
)

// ConfigDir is the directory, under both the home and working directories,
// that holds config.yaml and saved query transcripts.
const ConfigDir = ".fredquery"

// MCPServer describes how to launch the FRED MCP child process.
type MCPServer struct {
	Command         string        `yaml:"command"`
	Args            []string      `yaml:"args"`
	Env             []string      `yaml:"env"`
	StartupGrace    time.Duration `yaml:"startup_grace"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	BannerFilter    string        `yaml:"banner_filter"`
	ProtocolVersion string        `yaml:"protocol_version"`
	ClientName      string        `yaml:"client_name"`
	ClientVersion   string        `yaml:"client_version"`
}

// FRED configures access to the upstream REST API.
type FRED struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int64         `yaml:"cache_size"`
	// SeriesTools lists registry series that get a dedicated MCP tool.
	SeriesTools []string `yaml:"series_tools"`
}

// HTTP configures the REST and websocket surface.
type HTTP struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Planner constrains the plans produced by the LLM.
type Planner struct {
	AllowedTools    []string `yaml:"allowed_tools"`
	TargetSeries    []string `yaml:"target_series"`
	SaveTranscripts bool     `yaml:"save_transcripts"`
}

type Config struct {
	LLMClient string    `yaml:"llm"`
	Model     string    `yaml:"model"`
	LogLevel  string    `yaml:"log_level"`
	Server    MCPServer `yaml:"mcp_server"`
	FRED      FRED      `yaml:"fred"`
	HTTP      HTTP      `yaml:"http"`
	Planner   Planner   `yaml:"planner"`
}

// Default returns a configuration usable without any config file.
func Default() *Config {
	return &Config{
		LLMClient: "openai",
		Model:     "gpt-4",
		LogLevel:  "info",
		Server: MCPServer{
			Command:         "fred-mcp",
			StartupGrace:    2 * time.Second,
			RequestTimeout:  15 * time.Second,
			BannerFilter:    "FRED MCP Server",
			ProtocolVersion: "2024-11-05",
			ClientName:      "fred-query-app",
			ClientVersion:   "1.0.0",
		},
		FRED: FRED{
			BaseURL:     "https://api.stlouisfed.org/fred",
			APIKeyEnv:   "FRED_API_KEY",
			Timeout:     10 * time.Second,
			RateLimit:   2,
			Burst:       4,
			CacheTTL:    5 * time.Minute,
			CacheSize:   64 << 20,
			SeriesTools: []string{"CPIAUCSL", "RRPONTSYD"},
		},
		HTTP: HTTP{
			Addr:           ":3000",
			AllowedOrigins: []string{"*"},
		},
		Planner: Planner{
			AllowedTools: []string{"fred_*"},
			TargetSeries: []string{"MANEMP", "USCONS", "USTPU", "USPBS", "USLAH", "USEHS", "USFIRE", "USGOV"},
		},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. Environment variables
// are applied last.
func LoadConfig() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ConfigDir, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ConfigDir, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the file replace what is already set.
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnv overlays the supported environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("FRED_BASE_URL"); v != "" {
		c.FRED.BaseURL = v
	}
	if v := getenv("MCP_SERVER_PATH"); v != "" {
		c.Server.Command = v
	}
	if v := getenv("LLM_CLIENT"); v != "" {
		c.LLMClient = v
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.Model = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return errors.New("invalid PORT %q", v)
		}
		c.HTTP.Addr = ":" + v
	}
	return nil
}

// APIKey returns the FRED API key from the configured environment variable.
func (c *Config) APIKey() string {
	name := c.FRED.APIKeyEnv
	if name == "" {
		name = "FRED_API_KEY"
	}
	return os.Getenv(name)
}
