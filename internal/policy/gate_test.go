package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"reddit.com", "reddit.com"},
		{"www.reddit.com", "reddit.com"},
		{"https://www.reddit.com/r/golang", "reddit.com"},
		{"HTTPS://OLD.REDDIT.COM:443/top", "reddit.com"},
		{"news.ycombinator.com", "ycombinator.com"},
		{"example.co.uk", "example.co.uk"},
		{"sub.example.co.uk", "example.co.uk"},
		{"localhost:8080", "localhost"},
		{"127.0.0.1:9222", "127.0.0.1"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeHost(tc.in))
		})
	}
}

func TestGate_ReadOnlyActionsAlwaysAllowed(t *testing.T) {
	gate := NewGate(zap.NewNop(), config.PolicyConfig{
		AllowAll:     false,
		BlockedHosts: []string{"evil.example"},
	})

	for _, at := range []schemas.ActionType{
		schemas.ActionFindElements, schemas.ActionExtract, schemas.ActionWaitFor, schemas.ActionAskUser,
	} {
		d := gate.Evaluate(at, "evil.example")
		assert.Truef(t, d.Allowed, "read-only %s must pass the gate", at)
	}
}

func TestGate_BlocklistBeatsAllowAll(t *testing.T) {
	gate := NewGate(zap.NewNop(), config.PolicyConfig{
		AllowAll:     true,
		BlockedHosts: []string{"www.evil.example"},
	})

	d := gate.Evaluate(schemas.ActionNavigate, "https://evil.example/login")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "blocked")

	d = gate.Evaluate(schemas.ActionNavigate, "https://good.example")
	assert.True(t, d.Allowed)
}

func TestGate_AllowlistMode(t *testing.T) {
	gate := NewGate(zap.NewNop(), config.PolicyConfig{
		AllowAll:     false,
		AllowedHosts: []string{"reddit.com"},
	})

	assert.True(t, gate.Evaluate(schemas.ActionNavigate, "https://www.reddit.com").Allowed)
	assert.True(t, gate.Evaluate(schemas.ActionClick, "old.reddit.com").Allowed,
		"subdomains share the registered domain")

	d := gate.Evaluate(schemas.ActionNavigate, "https://example.com")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "allowlist")
}

func TestGate_EmptyHostBootstraps(t *testing.T) {
	gate := NewGate(zap.NewNop(), config.PolicyConfig{AllowAll: false})
	assert.True(t, gate.Evaluate(schemas.ActionClick, "").Allowed)
}

func TestGate_IsDeterministic(t *testing.T) {
	gate := NewGate(zap.NewNop(), config.PolicyConfig{
		AllowAll:     false,
		AllowedHosts: []string{"reddit.com"},
	})
	first := gate.Evaluate(schemas.ActionNavigate, "reddit.com")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, gate.Evaluate(schemas.ActionNavigate, "reddit.com"))
	}
}

func TestHostOf(t *testing.T) {
	nav := schemas.Action{Type: schemas.ActionNavigate, URL: "https://www.reddit.com/r/golang"}
	assert.Equal(t, "reddit.com", HostOf(nav, "example.com"))

	click := schemas.Action{Type: schemas.ActionClick}
	assert.Equal(t, "example.com", HostOf(click, "https://example.com/page"))
}
