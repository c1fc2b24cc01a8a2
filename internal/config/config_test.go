package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAccounts(t *testing.T) {
	accounts := ParseAccounts("alice:pw1:Alice, bob:pw2:Bob:lead ,broken, :x:y")

	if assert.Len(t, accounts, 2) {
		assert.Equal(t, Account{ID: 1, Username: "alice", Password: "pw1", Name: "Alice", Role: "member"}, accounts[0])
		assert.Equal(t, Account{ID: 2, Username: "bob", Password: "pw2", Name: "Bob", Role: "lead"}, accounts[1])
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("DAILYCHAT_URL", "http://agent.local:9000/")
	t.Setenv("DAILYCHAT_TIMEOUT", "5s")
	t.Setenv("DAILYCHAT_CREDENTIALS", "/tmp/creds.yaml")

	cfg := LoadClient()

	assert.Equal(t, "http://agent.local:9000", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "/tmp/creds.yaml", cfg.CredentialsPath)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadAgentDefaults(t *testing.T) {
	t.Setenv("IMPORT_TOKEN_TTL", "not-a-duration")
	t.Setenv("RATE_LIMIT_REQUESTS", "30")

	cfg := LoadAgent()

	assert.Equal(t, 10*time.Minute, cfg.ImportTokenTTL)
	assert.Equal(t, 30, cfg.RateLimitRequests)
	assert.Equal(t, 24*time.Hour, cfg.JWTRenewWindow)
	assert.Empty(t, cfg.NATSURL)
	assert.NotEmpty(t, cfg.Users)
	assert.False(t, cfg.Development())
}
