package server

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker admits websocket upgrades from the configured origins. With
// no origins configured every origin is admitted.
type OriginChecker struct {
	allowedHosts map[string]struct{}
}

func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	allowedHosts := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}

		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			origin = u.Host
		}

		allowedHosts[strings.ToLower(origin)] = struct{}{}
	}

	return &OriginChecker{
		allowedHosts,
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	if len(c.allowedHosts) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	_, ok := c.allowedHosts[strings.ToLower(u.Host)]

	return ok
}
