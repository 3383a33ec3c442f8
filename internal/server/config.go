package server

import (
	"slices"
	"strings"

	"github.com/raysh454/webaudit/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the results API.
	ListenAddr string
	Logger     logging.Logger

	// AllowedOrigins limits CORS responses and WebSocket upgrades to these
	// origins. Empty allows any origin.
	AllowedOrigins []string
}

func (c Config) originAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	return slices.ContainsFunc(c.AllowedOrigins, func(o string) bool {
		return o == "*" || strings.EqualFold(strings.TrimRight(o, "/"), origin)
	})
}
