// File: internal/policy/gate.go
package policy

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Gate is the policy decision point consulted before every side-effecting
// action. Decisions are stateless: the gate recomputes each call from the
// current policy so runtime settings changes take effect immediately.
type Gate struct {
	logger *zap.Logger
	cfg    config.PolicyConfig

	allowed map[string]bool
	blocked map[string]bool
}

// NewGate builds a gate from the policy configuration.
func NewGate(logger *zap.Logger, cfg config.PolicyConfig) *Gate {
	g := &Gate{
		logger:  logger.Named("permission_gate"),
		cfg:     cfg,
		allowed: make(map[string]bool, len(cfg.AllowedHosts)),
		blocked: make(map[string]bool, len(cfg.BlockedHosts)),
	}
	for _, h := range cfg.AllowedHosts {
		g.allowed[NormalizeHost(h)] = true
	}
	for _, h := range cfg.BlockedHosts {
		g.blocked[NormalizeHost(h)] = true
	}
	return g
}

// Evaluate decides whether an action of the given type may run against the
// given destination host. Read-only action kinds are always allowed; the
// side-effecting kinds are checked against the host lists.
func (g *Gate) Evaluate(intent schemas.ActionType, host string) schemas.PermissionDecision {
	if !intent.SideEffecting() {
		return schemas.Allow()
	}

	norm := NormalizeHost(host)
	if norm != "" && g.blocked[norm] {
		g.logger.Warn("Action blocked by policy",
			zap.String("action", string(intent)),
			zap.String("host", norm))
		return schemas.Deny(fmt.Sprintf("host %q is blocked by policy", norm))
	}

	if g.cfg.AllowAll {
		return schemas.Allow()
	}

	// Actions without a destination (scroll, click on the current page) are
	// judged by the page they run on; an empty host only occurs before the
	// first navigation and is allowed so a run can bootstrap.
	if norm == "" {
		return schemas.Allow()
	}

	if g.allowed[norm] {
		return schemas.Allow()
	}
	return schemas.Deny(fmt.Sprintf("host %q is not on the allowlist", norm))
}

// NormalizeHost reduces a URL or host string to a comparable registered
// domain: lowercase, no scheme, no port, no leading "www.". Hosts without a
// public suffix (localhost, IPs) are returned as-is after trimming.
func NormalizeHost(raw string) string {
	h := strings.TrimSpace(strings.ToLower(raw))
	if h == "" {
		return ""
	}
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil && u.Host != "" {
			h = u.Host
		}
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimSuffix(h, ".")
	h = strings.TrimPrefix(h, "www.")
	if h == "" {
		return ""
	}
	if net.ParseIP(h) != nil {
		return h
	}
	if etld, err := publicsuffix.EffectiveTLDPlusOne(h); err == nil {
		return etld
	}
	return h
}

// HostOf extracts the normalized destination host of an action. Navigations
// carry it in the URL; every other action targets the current page, supplied
// by the caller.
func HostOf(action schemas.Action, currentHost string) string {
	if action.Type == schemas.ActionNavigate && action.URL != "" {
		return NormalizeHost(action.URL)
	}
	return NormalizeHost(currentHost)
}
