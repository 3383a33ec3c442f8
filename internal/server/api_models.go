package server

// RunTestsRequest starts a scan of URL.
type RunTestsRequest struct {
	URL string `json:"url" example:"http://localhost:9999/good"`
}

// SummaryResponse carries the plain-language summary of the live results.
type SummaryResponse struct {
	Summary string `json:"summary" example:"The website was tested for 7 key functionalities."`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
