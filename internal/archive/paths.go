package archive

import (
	"fmt"
	"time"
)

// Path layout inside the archive. The date segment is the UTC date of
// the request's receipt timestamp, not the time of archival.
//
//	provider-requests/{tenantId}/{proxyId}/{YYYY-MM-DD}/{requestId}/request.json
//	provider-requests/{tenantId}/{proxyId}/{YYYY-MM-DD}/{requestId}/request.body
//	provider-requests/{tenantId}/{proxyId}/{YYYY-MM-DD}/{requestId}/response.json
//	provider-requests/{tenantId}/{proxyId}/{YYYY-MM-DD}/{requestId}/response.body
//	work-sessions/{tenantId}/{sessionId}/{YYYY-MM-DD}/combined.json

// DateSegment formats a timestamp as the archive's UTC date segment.
func DateSegment(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RequestBasePath returns the directory for one forwarded request.
func RequestBasePath(tenantID, proxyID uint, receivedAt time.Time, requestID string) string {
	return fmt.Sprintf("provider-requests/%d/%d/%s/%s", tenantID, proxyID, DateSegment(receivedAt), requestID)
}

// RequestMetaPath returns the request metadata document path.
func RequestMetaPath(tenantID, proxyID uint, receivedAt time.Time, requestID string) string {
	return RequestBasePath(tenantID, proxyID, receivedAt, requestID) + "/request.json"
}

// RequestBodyPath returns the raw request body path.
func RequestBodyPath(tenantID, proxyID uint, receivedAt time.Time, requestID string) string {
	return RequestBasePath(tenantID, proxyID, receivedAt, requestID) + "/request.body"
}

// ResponseMetaPath returns the response metadata document path.
func ResponseMetaPath(tenantID, proxyID uint, receivedAt time.Time, requestID string) string {
	return RequestBasePath(tenantID, proxyID, receivedAt, requestID) + "/response.json"
}

// ResponseBodyPath returns the raw response body path.
func ResponseBodyPath(tenantID, proxyID uint, receivedAt time.Time, requestID string) string {
	return RequestBasePath(tenantID, proxyID, receivedAt, requestID) + "/response.body"
}

// CombinedPath returns the session transcript document path.
func CombinedPath(tenantID, sessionID uint, sessionCreatedAt time.Time) string {
	return fmt.Sprintf("work-sessions/%d/%d/%s/combined.json", tenantID, sessionID, DateSegment(sessionCreatedAt))
}
