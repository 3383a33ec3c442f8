package webclient

import "context"

// WebClient issues HTTP-like requests for the scan checks and the watch
// transport. Backends differ in how the page is obtained (plain HTTP or a
// headless browser) but share this contract.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}
