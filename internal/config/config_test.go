package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benithors/dotpricecli/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Len(t, cfg.Registrars, 8)
	assert.Equal(t, 20*time.Second, cfg.Deadline)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTLAvailable)
	assert.Equal(t, time.Hour, cfg.Cache.TTLUnavailable)
	assert.Equal(t, 10, cfg.MaxConnsPerHost)
	assert.Equal(t, time.Minute, cfg.Queue.ClaimIdle)
	assert.Equal(t, 30*time.Second, cfg.Queue.ClaimInterval)

	hover, ok := cfg.Registrar("hover")
	require.True(t, ok)
	assert.Equal(t, "generic", hover.Kind)
	assert.Equal(t, 12*time.Second, hover.Timeout)
	assert.Equal(t, "10.99", hover.AvgPrice)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, "INR", rules["India"].Currency)
	assert.Equal(t, "100", rules["India"].Markup.String())
	assert.Contains(t, rules, pricing.DefaultLocation)

	rates, err := cfg.ExchangeRates()
	require.NoError(t, err)
	assert.Equal(t, "83", rates["INR"].String())

	policy, err := cfg.PricingPolicy()
	require.NoError(t, err)
	assert.Equal(t, "1.5", policy.MinMargin.String())
	assert.Equal(t, "50", policy.MaxMarkupPercent.String())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dotprice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
deadline: 12s
policy:
  min_margin: "2.00"
registrars:
  - name: porkbun
    kind: porkbun
    enabled: true
    timeout: 5s
  - name: hover
    kind: generic
    enabled: true
    base_url: https://hover.example/check/{domain}
    avg_price: "10.99"
locations:
  Mexico:
    markup: "30"
    currency: MXN
    symbol: "$"
rates:
  MXN: 17
cache:
  backend: redis
`), 0o644))

	t.Setenv("DOTPRICE_DEADLINE", "15s")
	t.Setenv("PORKBUN_API_KEY", "pk")
	t.Setenv("PORKBUN_SECRET_API_KEY", "sk")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Deadline)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	require.Len(t, cfg.Registrars, 2)
	assert.Equal(t, 5*time.Second, cfg.Registrars[0].Timeout)
	assert.Equal(t, "pk", cfg.Registrars[0].APIKey)
	assert.Equal(t, "sk", cfg.Registrars[0].APISecret)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, "MXN", rules["mexico"].Currency)
	assert.Contains(t, rules, "India")

	policy, err := cfg.PricingPolicy()
	require.NoError(t, err)
	assert.Equal(t, "2", policy.MinMargin.String())
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	delete(cfg.Locations, "default")
	cfg.Registrars = append(cfg.Registrars, RegistrarConfig{Name: "porkbun", Kind: "porkbun"})
	cfg.Registrars = append(cfg.Registrars, RegistrarConfig{Name: "odd", Kind: "carrier-pigeon"})
	cfg.Queue.Backend = "sqs"
	cfg.Deadline = 0

	err = cfg.Validate()
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, pricing.ErrConfiguration)
	assert.GreaterOrEqual(t, len(ce.Problems), 5)
	assert.Contains(t, err.Error(), `duplicate registrar "porkbun"`)
	assert.Contains(t, err.Error(), `unknown queue backend "sqs"`)
}

func TestValidate_MissingRate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	delete(cfg.Rates, "inr")
	delete(cfg.Rates, "INR")
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INR")
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{Registrars: []RegistrarConfig{
		{Name: "namecheap"},
		{Name: "godaddy", APIKey: "explicit"},
	}}
	env := map[string]string{
		"NAMECHEAP_API_KEY":   "nk",
		"NAMECHEAP_API_USER":  "nu",
		"NAMECHEAP_CLIENT_IP": "10.0.0.1",
		"GODADDY_API_KEY":     "ignored",
		"GODADDY_API_SECRET":  "gs",
	}
	cfg.applySecrets(func(k string) string { return env[k] })

	assert.Equal(t, "nk", cfg.Registrars[0].APIKey)
	assert.Equal(t, "nu", cfg.Registrars[0].Username)
	assert.Equal(t, "10.0.0.1", cfg.Registrars[0].ClientIP)
	assert.Equal(t, "explicit", cfg.Registrars[1].APIKey)
	assert.Equal(t, "gs", cfg.Registrars[1].APISecret)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOTPRICE_TEST_SECRET=from-dotenv\n"), 0o600))
	t.Setenv("DOTPRICE_TEST_SECRET", "")
	require.NoError(t, os.Unsetenv("DOTPRICE_TEST_SECRET"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-dotenv", os.Getenv("DOTPRICE_TEST_SECRET"))
}
