package archive

import (
	"strings"
	"time"
)

// RequestMeta is the archived metadata document for one forwarded call.
// Headers are stored as ordered name/value pairs; the authorization
// header is stripped before archival and never appears here.
type RequestMeta struct {
	RequestID  string      `json:"requestId"`
	Method     string      `json:"method"`
	Path       string      `json:"path"`
	Query      string      `json:"query,omitempty"`
	Headers    [][2]string `json:"headers"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// ResponseMeta is the archived metadata document for one upstream
// response.
type ResponseMeta struct {
	StatusCode  int         `json:"statusCode"`
	Headers     [][2]string `json:"headers"`
	DurationMs  int64       `json:"durationMs"`
	CompletedAt time.Time   `json:"completedAt"`
}

// Header returns the first value for name, case-insensitively, or "".
func (m RequestMeta) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h[0], name) {
			return h[1]
		}
	}
	return ""
}
