package httpclient

import (
	"net/http"
	"time"
)

// New returns a client with a hard request deadline. Outbound calls to the
// identity provider must never outlive the inbound request budget.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
