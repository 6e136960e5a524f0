package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

var statusCodes = map[ErrorCategory]int{
	CategoryValidation:    http.StatusBadRequest,
	CategoryConfig:        http.StatusBadRequest,
	CategoryNotFound:      http.StatusNotFound,
	CategoryAlreadyExists: http.StatusConflict,
	CategoryLock:          http.StatusConflict,
	CategoryNetwork:       http.StatusBadGateway,
	CategoryContent:       http.StatusUnprocessableEntity,
	CategoryRepository:    http.StatusServiceUnavailable,
	CategoryRuntime:       http.StatusServiceUnavailable,
	CategoryDaemon:        http.StatusServiceUnavailable,
}

// HTTPErrorAdapter writes errors as JSON API responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates an adapter. A nil logger means slog.Default.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse is the body of every API error.
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// StatusCodeFor maps err's category to a status; unknown errors are 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if c, ok := AsClassified(err); ok {
		if code, known := statusCodes[c.category]; known {
			return code
		}
	}
	return http.StatusInternalServerError
}

// FormatErrorResponse builds the response body. Unclassified errors expose
// only their text.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) HTTPErrorResponse {
	c, ok := AsClassified(err)
	if !ok {
		if err == nil {
			return HTTPErrorResponse{}
		}
		return HTTPErrorResponse{Error: err.Error()}
	}
	resp := HTTPErrorResponse{Error: c.message, Code: string(c.category), Retryable: c.CanRetry()}
	if len(c.context) > 0 {
		resp.Details = c.context
	}
	return resp
}

// WriteErrorResponse writes err and logs it with the request context.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	status := a.StatusCodeFor(err)
	body, jerr := json.Marshal(a.FormatErrorResponse(err))
	if jerr != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)

	level := slog.LevelError
	if c, ok := AsClassified(err); ok {
		level = levelFor(c.severity)
	}
	a.logger.Log(r.Context(), level, "API request failed",
		slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("error", err))
}
