package chat

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a websocket.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *slog.Logger
}

// NewOriginPolicy normalises origins ("scheme://host[:port]"). "*" allows
// every origin; invalid entries are logged and skipped.
func NewOriginPolicy(origins []string, logger *slog.Logger) *OriginPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	p := &OriginPolicy{allowed: make(map[string]struct{}), logger: logger}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			p.allowAll = true
		default:
			n, ok := normalizeOrigin(trimmed)
			if !ok {
				logger.Warn("ignoring invalid origin in configuration", "origin", origin)
				continue
			}
			p.allowed[n] = struct{}{}
		}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Check is a websocket.Upgrader CheckOrigin func. Requests without an Origin
// header come from non-browser clients and are let through.
func (p *OriginPolicy) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	if n, ok := normalizeOrigin(header); ok {
		if _, allowed := p.allowed[n]; allowed {
			return true
		}
	}
	p.logger.Warn("blocked websocket from disallowed origin", "origin", header)
	return false
}
