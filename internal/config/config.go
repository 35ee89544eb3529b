// Package config loads and validates the application configuration from
// YAML, and can emit a JSON schema for editor tooling.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/thewatergategroups/llama/pkg/marketdata/provider"
)

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" validate:"required" jsonschema:"title=Listen Address,description=host:port the API server binds to,default=:8000"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path" validate:"required" jsonschema:"title=Database Path,description=Path to the DuckDB database file; :memory: keeps everything in memory"`
}

// BacktestConfig tunes the replay engine.
type BacktestConfig struct {
	Days                int     `yaml:"days" json:"days" validate:"omitempty,gt=0" jsonschema:"title=Test Window Days,description=Number of days of minute bars each backtest replays,default=30"`
	Workers             int     `yaml:"workers" json:"workers" validate:"omitempty,gt=0" jsonschema:"title=Workers,description=Number of concurrent strategy/symbol replays,default=4"`
	StartingBuyingPower float64 `yaml:"starting_buying_power" json:"starting_buying_power" validate:"omitempty,gt=0" jsonschema:"title=Starting Buying Power,description=Simulated account balance each replay starts with,default=1000"`
}

// LiveConfig configures live trading against a bar stream.
type LiveConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled" jsonschema:"title=Enabled,description=Whether live trading starts with the server"`
	Symbols   []string `yaml:"symbols" json:"symbols" validate:"required_if=Enabled true" jsonschema:"title=Symbols,description=Symbols to subscribe to on the bar stream"`
	StreamURL string   `yaml:"stream_url" json:"stream_url" jsonschema:"title=Stream URL,description=WebSocket endpoint for live minute bars,default=wss://stream.data.alpaca.markets/v2/iex"`
}

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig     `yaml:"server" json:"server"`
	Database DatabaseConfig   `yaml:"database" json:"database"`
	Provider *provider.Config `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"title=Market Data Provider,description=Upstream market data credentials; omit to run without one"`
	Backtest BacktestConfig   `yaml:"backtest" json:"backtest"`
	Live     LiveConfig       `yaml:"live" json:"live"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8000"},
		Database: DatabaseConfig{Path: "llama.duckdb"},
		Backtest: BacktestConfig{Days: 30, Workers: 4, StartingBuyingPower: 1000},
		Live:     LiveConfig{StreamURL: "wss://stream.data.alpaca.markets/v2/iex"},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// GenerateSchema reflects the configuration into a JSON schema.
func (c Config) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}

	schema := reflector.Reflect(&c)
	schema.Title = "llama-config"
	schema.Description = "Configuration schema for the llama trading service"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON renders the configuration schema as indented JSON.
func (c Config) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	return string(schemaBytes), nil
}
