package resolve

import (
	"net/http"

	"vidgate/internal/media"
	"vidgate/internal/provider"
)

// Reason says why a resolve call did not produce media.
type Reason string

const (
	ReasonInvalidInput  Reason = "invalid-input"
	ReasonInvalidScheme Reason = "invalid-scheme"
	ReasonBlocked       Reason = "blocked"
	ReasonFetchTimeout  Reason = "fetch-timeout"
	ReasonNetworkError  Reason = "fetch-network-error"
	ReasonHTTPError     Reason = "http-error"
	ReasonNoMedia       Reason = "no-media-found"
	ReasonCancelled     Reason = "cancelled"
)

// HTTPStatus maps a reason to the status /resolve answers with. "No media"
// is a successful call with an empty answer, distinct from transport
// failures.
func (r Reason) HTTPStatus() int {
	switch r {
	case "", ReasonNoMedia:
		return http.StatusOK
	case ReasonInvalidInput, ReasonInvalidScheme, ReasonBlocked:
		return http.StatusBadRequest
	case ReasonCancelled:
		return 499
	default:
		return http.StatusBadGateway
	}
}

// Resolved is a candidate joined with its provider profile and proxy link.
type Resolved struct {
	Type       media.Kind        `json:"type"`
	URL        string            `json:"url"`
	ProxiedURL string            `json:"proxiedUrl"`
	Quality    string            `json:"quality,omitempty"`
	Provider   *provider.Profile `json:"-"`
}

// Result is the outcome of one resolve call. OK is true exactly when URLs
// is non-empty.
type Result struct {
	OK      bool       `json:"ok"`
	URLs    []Resolved `json:"urls"`
	Message string     `json:"message"`
	Reason  Reason     `json:"reason,omitempty"`
	// Status is the upstream status code for ReasonHTTPError.
	Status int    `json:"status,omitempty"`
	Debug  *Debug `json:"debug,omitempty"`
}

// Debug describes how a result was reached.
type Debug struct {
	PageURL    string           `json:"pageUrl"`
	Provider   string           `json:"provider,omitempty"`
	Stages     []StageReport    `json:"stages"`
	Candidates []CandidateDebug `json:"candidates"`
}

// StageReport records one stage of the fallback chain.
type StageReport struct {
	Stage  string `json:"stage"`
	Source string `json:"source,omitempty"`
	Found  int    `json:"found"`
	Error  string `json:"error,omitempty"`
}

// CandidateDebug is the provider attribution for one returned URL.
type CandidateDebug struct {
	URL         string `json:"url"`
	Provider    string `json:"provider,omitempty"`
	Reliability int    `json:"reliability"`
}
