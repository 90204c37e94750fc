package namecheap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okPayload = `<?xml version="1.0" encoding="utf-8"?>
<ApiResponse Status="OK" xmlns="http://api.namecheap.com/xml.response">
  <Errors />
  <CommandResponse Type="namecheap.domains.check">
    <DomainCheckResult Domain="example.com" Available="true" IsPremiumName="false" PremiumRegistrationPrice="0" />
    <DomainCheckResult Domain="fancy.com" Available="true" IsPremiumName="true" PremiumRegistrationPrice="1250.00" />
    <DomainCheckResult Domain="google.com" Available="false" IsPremiumName="false" PremiumRegistrationPrice="0" />
  </CommandResponse>
</ApiResponse>`

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "namecheap.domains.check", r.URL.Query().Get("Command"))
		assert.Equal(t, "u", r.URL.Query().Get("ApiUser"))
		w.Header().Set("content-type", "application/xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Check(t *testing.T) {
	t.Parallel()

	srv := newServer(t, okPayload)
	c, err := NewClient(Options{APIUser: "u", APIKey: "k", BaseURL: srv.URL, StandardPrice: decimal.RequireFromString("9.48")})
	require.NoError(t, err)

	tests := []struct {
		domain    string
		available bool
		premium   bool
		price     string
	}{
		{"example.com", true, false, "9.48"},
		{"fancy.com", true, true, "1250"},
		{"google.com", false, false, "0"},
	}
	for _, tt := range tests {
		got, err := c.Check(context.Background(), tt.domain)
		require.NoError(t, err, tt.domain)
		assert.Equal(t, tt.available, got.Available, tt.domain)
		assert.Equal(t, tt.premium, got.Premium, tt.domain)
		assert.Equal(t, tt.price, got.Price.String(), tt.domain)
	}
}

func TestClient_Check_APIError(t *testing.T) {
	t.Parallel()

	srv := newServer(t, `<ApiResponse Status="ERROR"><Errors><Error Number="1011102">API Key is invalid or API access has not been enabled</Error></Errors></ApiResponse>`)
	c, err := NewClient(Options{APIUser: "u", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Check(context.Background(), "example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API Key is invalid")
}

func TestClient_Check_NoResult(t *testing.T) {
	t.Parallel()

	srv := newServer(t, okPayload)
	c, err := NewClient(Options{APIUser: "u", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Check(context.Background(), "missing.org")
	require.Error(t, err)
}
