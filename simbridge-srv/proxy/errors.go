package proxy

import (
	"fmt"
	"net/http"
)

// Error is a proxy-specific error with a stable code and description.
type Error struct {
	Code        string
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Description, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProxyError creates an Error with the given code and cause.
func NewProxyError(code string, cause error) *Error {
	return &Error{
		Code:        code,
		Description: GetErrorDescription(code),
		Cause:       cause,
	}
}

// Proxy error codes. The code is surfaced to clients in the
// X-Proxy-Error response header.
const (
	// Startup and configuration (E1000-E1999)
	ErrCodeListenerCreateFailed = "E1001"
	ErrCodeJournalInitFailed    = "E1002"
	ErrCodeInvalidConfig        = "E1003"
	ErrCodeAlreadyStarted       = "E1004"
	ErrCodeNotStarted           = "E1005"

	// Simulation handling (E2000-E2999)
	ErrCodeSimulationMiss         = "E2001"
	ErrCodeSimulationLoadFailed   = "E2002"
	ErrCodeSimulationExportFailed = "E2003"
	ErrCodeSimulationWriteFailed  = "E2004"

	// Upstream traffic (E3000-E3999)
	ErrCodeUpstreamDialFailed    = "E3001"
	ErrCodeUpstreamRequestFailed = "E3002"
	ErrCodeSOCKS5DialerFailed    = "E3003"
	ErrCodeTunnelFailed          = "E3004"

	// HTTP processing (E4000-E4999)
	ErrCodeHTTPBodyReadFailed      = "E4001"
	ErrCodeHTTPResponseWriteFailed = "E4002"
	ErrCodeHTTPHijackFailed        = "E4003"
	ErrCodeHTTPHijackNotSupported  = "E4004"

	// Validation (E5000-E5999)
	ErrCodeDiffsReported = "E5001"
)

// ErrorDescriptions maps error codes to human-readable descriptions.
var ErrorDescriptions = map[string]string{
	ErrCodeListenerCreateFailed: "Failed to create network listener",
	ErrCodeJournalInitFailed:    "Failed to initialize journal backend",
	ErrCodeInvalidConfig:        "Invalid proxy configuration",
	ErrCodeAlreadyStarted:       "Proxy is already started",
	ErrCodeNotStarted:           "Proxy is not started",

	ErrCodeSimulationMiss:         "No simulated response matches the request",
	ErrCodeSimulationLoadFailed:   "Failed to load simulation source",
	ErrCodeSimulationExportFailed: "Failed to export simulation",
	ErrCodeSimulationWriteFailed:  "Failed to write simulated response",

	ErrCodeUpstreamDialFailed:    "Failed to dial upstream server",
	ErrCodeUpstreamRequestFailed: "Failed to forward request upstream",
	ErrCodeSOCKS5DialerFailed:    "Failed to create SOCKS5 dialer",
	ErrCodeTunnelFailed:          "CONNECT tunnel establishment failed",

	ErrCodeHTTPBodyReadFailed:      "Failed to read HTTP message body",
	ErrCodeHTTPResponseWriteFailed: "Failed to write HTTP response",
	ErrCodeHTTPHijackFailed:        "Failed to hijack HTTP connection",
	ErrCodeHTTPHijackNotSupported:  "HTTP connection hijacking not supported",

	ErrCodeDiffsReported: "Recorded traffic differs from expected traffic",
}

// GetErrorDescription returns the description for a given error code.
func GetErrorDescription(code string) string {
	if desc, exists := ErrorDescriptions[code]; exists {
		return desc
	}
	return "Unknown error code"
}

// writeProxyError answers a proxied request with an error status and the
// proxy error code header.
func writeProxyError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("X-Proxy-Error", code)
	http.Error(w, fmt.Sprintf("%s: %s", code, GetErrorDescription(code)), status)
}
