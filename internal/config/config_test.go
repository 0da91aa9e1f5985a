package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleYAML = `
server:
  addr: ":9090"
orchestrator:
  interval_minutes: 5
risk:
  max_trade_fraction: 0.1
  min_liquidity: 2000
providers:
  - name: openai
    base_url: "https://api.openai.com/v1"
    model: "gpt-4o"
agents:
  - name: quant-alpha
    provider: openai
    model: gpt-4o
    strategy: "buy value"
    initial_capital: 500
    active: true
  - name: sleeper
    provider: openai
    model: gpt-4o
    strategy: "do nothing"
    initial_capital: 250
    active: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "arena")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "arena")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Orchestrator.IntervalMinutes)
	assert.Equal(t, "0.1", cfg.Risk.MaxTradeFraction.String())
	assert.Equal(t, "2000", cfg.Risk.MinLiquidity.String())
	// Unset risk values fall back to defaults.
	assert.Equal(t, "0.0001", cfg.Risk.DustEpsilon.String())

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "sk-test", cfg.Providers[0].APIKey)
	assert.Equal(t, 60, cfg.Providers[0].TimeoutSeconds)

	require.Len(t, cfg.Agents, 2)
	assert.True(t, cfg.Agents[0].Active.Bool())
	assert.False(t, cfg.Agents[1].Active.Bool())
	assert.Equal(t, "500", cfg.Agents[0].InitialCapital.String())

	assert.True(t, cfg.Database.Enabled())
	assert.Contains(t, cfg.Database.DSN(), "localhost")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Venue.Configured())
}

func TestLoadConfig_NoDatabase(t *testing.T) {
	t.Setenv("DB_HOST", "")
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			name: "no agents",
			mutate: `
providers:
  - name: openai
agents: []
`,
			wantErr: "no agents",
		},
		{
			name: "unknown provider",
			mutate: `
providers:
  - name: openai
agents:
  - name: quant-alpha
    provider: anthropic
    initial_capital: 500
`,
			wantErr: "unknown provider",
		},
		{
			name: "duplicate agent",
			mutate: `
providers:
  - name: openai
agents:
  - name: quant-alpha
    provider: openai
    initial_capital: 500
  - name: quant-alpha
    provider: openai
    initial_capital: 500
`,
			wantErr: "duplicate agent",
		},
		{
			name: "fraction out of range",
			mutate: `
risk:
  max_trade_fraction: 1.5
providers:
  - name: openai
agents:
  - name: quant-alpha
    provider: openai
    initial_capital: 500
`,
			wantErr: "max_trade_fraction",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.mutate))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestFlexBool_UnmarshalYAML(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{`v: true`, true},
		{`v: "true"`, true},
		{`v: "false"`, false},
		{`v: 1`, true},
		{`v: 0`, false},
	}
	for _, tc := range cases {
		var out struct {
			V FlexBool `yaml:"v"`
		}
		require.NoError(t, yaml.Unmarshal([]byte(tc.in), &out), tc.in)
		assert.Equal(t, tc.want, out.V.Bool(), tc.in)
	}
}

func TestDecimal_UnmarshalYAML(t *testing.T) {
	var out struct {
		A Decimal `yaml:"a"`
		B Decimal `yaml:"b"`
		C Decimal `yaml:"c"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 0.1\nb: \"2.5\"\nc: 100"), &out))
	assert.Equal(t, "0.1", out.A.String())
	assert.Equal(t, "2.5", out.B.String())
	assert.Equal(t, "100", out.C.String())

	var bad struct {
		A Decimal `yaml:"a"`
	}
	require.Error(t, yaml.Unmarshal([]byte("a: [1,2]"), &bad))
}
