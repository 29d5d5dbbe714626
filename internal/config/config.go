package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/genegpt-server/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager. A .env file in the
// working directory is loaded into the process environment first.
func NewManager() (*Manager, error) {
	_ = godotenv.Load()

	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// NewManagerFromConfig wraps an already built configuration.
func NewManagerFromConfig(cfg *domain.Config) *Manager {
	return &Manager{v: viper.New(), config: cfg}
}

func (m *Manager) loadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/genegpt/")

	v.SetEnvPrefix("GENEGPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// bindLegacyEnv accepts the unprefixed variable names existing deployments use.
// The prefixed GENEGPT_ form is still checked first.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.api_key":                  {"GENEGPT_LLM_API_KEY", "GROQ_API_KEY"},
		"external_api.google.api_key":  {"GENEGPT_EXTERNAL_API_GOOGLE_API_KEY", "GOOGLE_API_KEY"},
		"external_api.google.cse_id":   {"GENEGPT_EXTERNAL_API_GOOGLE_CSE_ID", "GOOGLE_CSE_ID"},
		"external_api.ncbi.api_key":    {"GENEGPT_EXTERNAL_API_NCBI_API_KEY", "NCBI_API_KEY"},
		"external_api.clinvar.api_key": {"GENEGPT_EXTERNAL_API_CLINVAR_API_KEY", "NCBI_API_KEY"},
		"history.postgres_url":         {"GENEGPT_HISTORY_POSTGRES_URL", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.cors_origins", []string{"*"})

	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.routing_model", "llama-3.1-8b-instant")
	v.SetDefault("llm.generation_model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.classify_temperature", 0.1)
	v.SetDefault("llm.generate_temperature", 0.3)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.history_turns_classify", 4)
	v.SetDefault("llm.history_turns_generate", 10)
	v.SetDefault("llm.data_context_limit", 4000)

	v.SetDefault("router.fetch_timeout", "20s")

	// External API defaults
	apis := map[string]string{
		"uniprot": "https://rest.uniprot.org",
		"pdb":     "https://data.rcsb.org",
		"string":  "https://string-db.org/api",
		"pubchem": "https://pubchem.ncbi.nlm.nih.gov/rest/pug",
		"ncbi":    "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		"kegg":    "https://rest.kegg.jp",
		"ensembl": "https://rest.ensembl.org",
		"clinvar": "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		"google":  "https://www.googleapis.com/customsearch/v1",
	}
	for name, baseURL := range apis {
		prefix := "external_api." + name
		v.SetDefault(prefix+".base_url", baseURL)
		v.SetDefault(prefix+".timeout", "15s")
		v.SetDefault(prefix+".rate_limit", 10)
		v.SetDefault(prefix+".retry_count", 1)
	}
	// NCBI allows 3 requests per second without a key.
	v.SetDefault("external_api.ncbi.rate_limit", 3)
	v.SetDefault("external_api.clinvar.rate_limit", 3)
	v.SetDefault("external_api.ensembl.rate_limit", 15)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.memory_size", 1000)
	v.SetDefault("cache.memory_ttl", "1h")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.redis_ttl", "24h")
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Query log database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "genegpt")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "./migrations")

	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.sqlite_path", "./data/genegpt.db")
	v.SetDefault("history.postgres_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("mcp.server_name", "genegpt")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetLLMConfig returns the language model configuration
func (m *Manager) GetLLMConfig() *domain.LLMConfig {
	return &m.config.LLM
}

// GetExternalAPIConfig returns external API configuration
func (m *Manager) GetExternalAPIConfig() *domain.ExternalAPIConfig {
	return &m.config.ExternalAPI
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration. A missing LLM API key is not an
// error: classification then falls back to the apology reply.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.RequestTimeout < 0 || config.LLM.Timeout < 0 || config.Router.FetchTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if config.LLM.BaseURL == "" {
		return fmt.Errorf("LLM base URL is required")
	}

	switch strings.ToLower(config.History.Driver) {
	case "sqlite":
		if config.History.SQLitePath == "" {
			return fmt.Errorf("history.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if config.History.PostgresURL == "" {
			return fmt.Errorf("history.postgres_url is required for the postgres driver")
		}
	case "none", "":
	default:
		return fmt.Errorf("invalid history driver: %s", config.History.Driver)
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a postgres URL for the query log database
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
