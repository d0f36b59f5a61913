package queue

import "time"

// Message type discriminators.
const (
	TypeProviderRequest = "provider-request"
	TypeUpdateSession   = "update-session"
)

// ProviderRequestMessage announces one archived forwarded call.
type ProviderRequestMessage struct {
	Type        string    `json:"type"`
	TenantID    uint      `json:"tenantId"`
	ProxyID     uint      `json:"proxyId"`
	RequestID   string    `json:"requestId"`
	Provider    string    `json:"provider"`
	RequestDate time.Time `json:"requestDate"`
}

// UpdateSessionMessage requests (re)computation of a session's
// analytics. Sent with a debounce delay so request bursts coalesce
// into one accumulator run.
type UpdateSessionMessage struct {
	Type      string `json:"type"`
	TenantID  uint   `json:"tenantId"`
	SessionID uint   `json:"sessionId"`
	Provider  string `json:"provider"`
}
