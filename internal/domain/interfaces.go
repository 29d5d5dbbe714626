package domain

import (
	"context"
)

// Fetcher retrieves data for one database. Implementations return an error
// for every failure, including "not found"; they never panic on bad input.
type Fetcher interface {
	Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, searchTerm, subCommand string) (map[string]any, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	return f(ctx, searchTerm, subCommand)
}

// LLMClassifier asks a language model for a structured routing decision.
type LLMClassifier interface {
	Classify(ctx context.Context, message string, history []Turn) (*Classification, error)
}

// LLMGenerator asks a language model to phrase the final answer.
type LLMGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest carries everything the answer-phrasing call needs.
type GenerationRequest struct {
	Message     string
	History     []Turn
	DBType      DBType
	SearchTerm  string
	DataContext string
	// FetchError is set when the lookup failed so the model can tell the user.
	FetchError string
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetLLMConfig() *LLMConfig
	GetExternalAPIConfig() *ExternalAPIConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
