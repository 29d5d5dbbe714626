package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Router      RouterConfig      `mapstructure:"router"`
	ExternalAPI ExternalAPIConfig `mapstructure:"external_api"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Database    DatabaseConfig    `mapstructure:"database"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	MCP         MCPConfig         `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	APIKey               string        `mapstructure:"api_key"`
	RoutingModel         string        `mapstructure:"routing_model"`
	GenerationModel      string        `mapstructure:"generation_model"`
	ClassifyTemperature  float32       `mapstructure:"classify_temperature"`
	GenerateTemperature  float32       `mapstructure:"generate_temperature"`
	MaxTokens            int           `mapstructure:"max_tokens"`
	Timeout              time.Duration `mapstructure:"timeout"`
	HistoryTurnsClassify int           `mapstructure:"history_turns_classify"`
	HistoryTurnsGenerate int           `mapstructure:"history_turns_generate"`
	DataContextLimit     int           `mapstructure:"data_context_limit"`
}

// RouterConfig bounds database dispatch.
type RouterConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// ExternalAPIConfig represents external API configuration
type ExternalAPIConfig struct {
	UniProt APIConfig    `mapstructure:"uniprot"`
	PDB     APIConfig    `mapstructure:"pdb"`
	String  APIConfig    `mapstructure:"string"`
	PubChem APIConfig    `mapstructure:"pubchem"`
	NCBI    APIConfig    `mapstructure:"ncbi"`
	KEGG    APIConfig    `mapstructure:"kegg"`
	Ensembl APIConfig    `mapstructure:"ensembl"`
	ClinVar APIConfig    `mapstructure:"clinvar"`
	Google  GoogleConfig `mapstructure:"google"`
}

// APIConfig is the connection setting shared by every REST database client
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
}

// GoogleConfig represents Google Custom Search configuration
type GoogleConfig struct {
	APIConfig `mapstructure:",squash"`
	CSEID     string `mapstructure:"cse_id"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MemorySize  int           `mapstructure:"memory_size"`
	MemoryTTL   time.Duration `mapstructure:"memory_ttl"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// DatabaseConfig represents the Postgres connection used for the query log
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// HistoryConfig selects the chat history backend
type HistoryConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite", "postgres", "none"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig represents Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
