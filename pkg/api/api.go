// Package api defines the piiscrub HTTP API wire types.
package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
	"github.com/faheem-arif/pii-scrubber/pkg/storage"
)

// Error codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidOptions = "invalid_options"
	CodeTooLarge       = "request_too_large"
	CodeInternal       = "internal_error"
)

// ScrubRequest represents a request to scrub a text. Options omitted from the
// request fall back to the server's configured defaults.
type ScrubRequest struct {
	Text    string          `json:"text"`
	Options *RequestOptions `json:"options,omitempty"`
}

// RequestOptions overrides the server defaults for one request. The hash salt
// is only ever taken from server configuration.
type RequestOptions struct {
	Mode       *string `json:"mode,omitempty"`
	KeepLast   *int    `json:"keepLast,omitempty"`
	Aggressive *bool   `json:"aggressive,omitempty"`
	MaxMatches *int    `json:"maxMatches,omitempty"`
}

// Apply merges the overrides into base.
func (o *RequestOptions) Apply(base scrub.Options) scrub.Options {
	if o == nil {
		return base
	}
	if o.Mode != nil {
		base.Mode = scrub.Mode(*o.Mode)
	}
	if o.KeepLast != nil {
		base.KeepLast = *o.KeepLast
	}
	if o.Aggressive != nil {
		base.Aggressive = *o.Aggressive
	}
	if o.MaxMatches != nil {
		base.MaxMatches = *o.MaxMatches
	}
	return base
}

// ScrubResponse represents the result of a scrub request.
type ScrubResponse struct {
	RunID        string       `json:"run_id"`
	Mode         scrub.Mode   `json:"mode"`
	ScrubbedText string       `json:"scrubbed_text"`
	Report       scrub.Report `json:"report"`

	// MappingJSONL is present in token-map mode when findings were replaced.
	MappingJSONL string `json:"mapping_jsonl,omitempty"`
}

// Detector describes one registered detector.
type Detector struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Severity int    `json:"severity"`
}

// DetectorsResponse lists the detector registry in evaluation order.
type DetectorsResponse struct {
	Detectors []Detector `json:"detectors"`
	Modes     []string   `json:"modes"`
}

// AuditsResponse lists recent runs.
type AuditsResponse struct {
	Runs []storage.Run `json:"runs"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
