package correlate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Identity is the caller identity extracted from a request body. All
// three parts come from the client, scoped per provider and proxy.
type Identity struct {
	ContributorID string
	AccountID     string
	SessionID     string
}

// ErrNoIdentity reports a request body that carries no usable identity.
// Such requests are still recorded, just not linked to a session.
var ErrNoIdentity = fmt.Errorf("correlate: no identity in request")

// anthropicMetadata mirrors the metadata envelope of an Anthropic
// messages request.
type anthropicMetadata struct {
	Metadata struct {
		UserID string `json:"user_id"`
	} `json:"metadata"`
}

// ExtractIdentity pulls the caller identity out of a raw request body.
// Only the anthropic wire format carries one today; other providers
// return ErrNoIdentity.
func ExtractIdentity(provider string, body []byte) (Identity, error) {
	if provider != "anthropic" {
		return Identity{}, ErrNoIdentity
	}

	var envelope anthropicMetadata
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Identity{}, fmt.Errorf("correlate: parse request body: %w", err)
	}
	if envelope.Metadata.UserID == "" {
		return Identity{}, ErrNoIdentity
	}
	return parseAnthropicUserID(envelope.Metadata.UserID)
}

// parseAnthropicUserID splits the composite user id the Anthropic
// client sends:
//
//	user_{contributor}_account_{account}_session_{session}
func parseAnthropicUserID(userID string) (Identity, error) {
	parts := strings.Split(userID, "_")
	if len(parts) < 6 || parts[0] != "user" || parts[2] != "account" || parts[4] != "session" {
		return Identity{}, fmt.Errorf("correlate: malformed user id %q", userID)
	}
	id := Identity{
		ContributorID: parts[1],
		AccountID:     parts[3],
		SessionID:     parts[5],
	}
	if id.ContributorID == "" || id.AccountID == "" || id.SessionID == "" {
		return Identity{}, fmt.Errorf("correlate: malformed user id %q", userID)
	}
	return id, nil
}
