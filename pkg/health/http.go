package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodyBytes bounds how much of a response body is read for ExpectBody
const maxBodyBytes = 64 * 1024

// HTTPChecker asks an agent, or the CI server on its behalf, whether it is ready
type HTTPChecker struct {
	// URL to request (e.g., "http://10.0.4.17:8085/status")
	URL string

	// Method is the HTTP method (default GET)
	Method string

	// Headers are added to every request
	Headers map[string]string

	// ExpectedStatusMin is the lowest accepted status code (default 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the highest accepted status code (default 399)
	ExpectedStatusMax int

	// ExpectBody, when set, must appear in the response body
	ExpectBody string

	// Client sends the requests; its timeout bounds a single check
	Client *http.Client
}

// NewHTTPChecker creates a GET checker with a 10s client timeout
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		Method:            http.MethodGet,
		Headers:           map[string]string{},
		ExpectedStatusMin: http.StatusOK,
		ExpectedStatusMax: 399,
		Client:            &http.Client{Timeout: 10 * time.Second},
	}
}

// Check sends one request
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	verdict := func(healthy bool, format string, args ...interface{}) Result {
		return Result{
			Healthy:   healthy,
			Message:   fmt.Sprintf(format, args...),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return verdict(false, "invalid request: %v", err)
	}
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return verdict(false, "%s %s: %v", h.Method, h.URL, err)
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("%s %s: %s", h.Method, h.URL, resp.Status)
	if resp.StatusCode < h.ExpectedStatusMin || resp.StatusCode > h.ExpectedStatusMax {
		return verdict(false, "%s, want %d-%d", status, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}
	if h.ExpectBody == "" {
		return verdict(true, "%s", status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return verdict(false, "%s, reading body: %v", status, err)
	}
	if !strings.Contains(string(body), h.ExpectBody) {
		return verdict(false, "%s, body lacks %q", status, h.ExpectBody)
	}
	return verdict(true, "%s", status)
}

// Type returns CheckTypeHTTP
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithMethod sets the HTTP method
func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.Method = method
	return h
}

// WithHeader adds a request header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithStatusRange replaces the accepted status codes
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.ExpectedStatusMin, h.ExpectedStatusMax = min, max
	return h
}

// WithExpectBody requires the response body to contain s
func (h *HTTPChecker) WithExpectBody(s string) *HTTPChecker {
	h.ExpectBody = s
	return h
}

// WithTimeout sets the client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}
