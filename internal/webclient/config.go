package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config selects and tunes a WebClient backend.
type Config struct {
	Client Client

	// Timeout bounds a single request (nethttp) or page load (chromedp).
	// Zero means 30s.
	Timeout time.Duration

	// IdleAfter is how long the network must be quiet before chromedp
	// considers a page rendered. Zero means 2s.
	IdleAfter time.Duration

	// UserAgent overrides the default User-Agent when non-empty.
	UserAgent string
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c Config) idleAfter() time.Duration {
	if c.IdleAfter <= 0 {
		return 2 * time.Second
	}
	return c.IdleAfter
}
