package coolify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Error is a non-2xx answer from the Coolify API.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coolify %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("coolify %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Temporary reports whether the failure is on the platform side.
func (e *Error) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func newError(op string, resp *resty.Response) *Error {
	var body errorResponse
	msg := strings.TrimSpace(resp.String())
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		msg = body.Message
	}
	return &Error{Op: op, StatusCode: resp.StatusCode(), Message: msg}
}

func (e *Error) notRunning() bool {
	return strings.Contains(strings.ToLower(e.Message), "not running")
}
