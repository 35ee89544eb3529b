package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/thewatergategroups/llama/pkg/marketdata/provider"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func (suite *ConfigTestSuite) writeConfig(content string) string {
	path := filepath.Join(suite.dir, "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (suite *ConfigTestSuite) TestDefaults() {
	cfg := DefaultConfig()

	suite.Equal(":8000", cfg.Server.Addr)
	suite.Equal("llama.duckdb", cfg.Database.Path)
	suite.Equal(30, cfg.Backtest.Days)
	suite.Equal(4, cfg.Backtest.Workers)
	suite.Nil(cfg.Provider)
	suite.NoError(cfg.Validate())
}

func (suite *ConfigTestSuite) TestLoadOverridesDefaults() {
	path := suite.writeConfig(`
server:
  addr: ":9999"
database:
  path: ":memory:"
backtest:
  days: 7
provider:
  type: alpaca
  alpaca_api_key: key
  alpaca_api_secret: secret
`)

	cfg, err := Load(path)
	suite.Require().NoError(err)

	suite.Equal(":9999", cfg.Server.Addr)
	suite.Equal(":memory:", cfg.Database.Path)
	suite.Equal(7, cfg.Backtest.Days)
	// Untouched sections keep their defaults
	suite.Equal(4, cfg.Backtest.Workers)
	suite.Require().NotNil(cfg.Provider)
	suite.Equal(provider.ProviderAlpaca, cfg.Provider.Type)
}

func (suite *ConfigTestSuite) TestLoadMissingFile() {
	_, err := Load(filepath.Join(suite.dir, "nope.yaml"))
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestLoadRejectsInvalidProvider() {
	path := suite.writeConfig(`
provider:
  type: alpaca
`)

	_, err := Load(path)
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestLoadRejectsMalformedYAML() {
	path := suite.writeConfig("server: [not a mapping")

	_, err := Load(path)
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	out, err := DefaultConfig().GenerateSchemaJSON()
	suite.Require().NoError(err)
	suite.Contains(out, "llama-config")
	suite.Contains(out, "starting_buying_power")
}
