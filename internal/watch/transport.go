package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/raysh454/webaudit/internal/model"
	"github.com/raysh454/webaudit/internal/webclient"
)

// Transport talks to the scan backend.
type Transport interface {
	// SubmitScan posts the scan request. The response is not inspected.
	SubmitScan(ctx context.Context, req model.ScanRequest) error
	// FetchResults returns the current results snapshot.
	FetchResults(ctx context.Context) (*model.ResultSnapshot, error)
}

// HTTPTransport implements Transport over a WebClient against BaseURL.
type HTTPTransport struct {
	BaseURL string
	Client  webclient.WebClient
}

func NewHTTPTransport(baseURL string, wc webclient.WebClient) *HTTPTransport {
	return &HTTPTransport{BaseURL: strings.TrimRight(baseURL, "/"), Client: wc}
}

func (h *HTTPTransport) SubmitScan(ctx context.Context, req model.ScanRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode scan request: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	if _, err := h.Client.Do(ctx, &webclient.Request{
		Method:  http.MethodPost,
		URL:     h.BaseURL + "/run-tests",
		Headers: headers,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("submit scan: %w", err)
	}
	return nil
}

func (h *HTTPTransport) FetchResults(ctx context.Context) (*model.ResultSnapshot, error) {
	resp, err := h.Client.Get(ctx, h.BaseURL+"/results")
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	var snap model.ResultSnapshot
	if err := json.Unmarshal(resp.Body, &snap); err != nil {
		return nil, fmt.Errorf("decode results (status %d): %w", resp.StatusCode, err)
	}
	return &snap, nil
}
