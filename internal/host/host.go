// Package host accepts an identity asserted by a trusted container
// (the Telegram WebApp wrapper). The container has already
// authenticated the user; no further verification happens here.
package host

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// InitDataEnv is checked at startup for container-provided init data.
const InitDataEnv = "FARMMAP_TG_INIT_DATA"

// Identity is a host-asserted user.
type Identity struct {
	ID        int64
	FirstName string
	Username  string
	Language  string
}

// Email derives the pseudo-identity used everywhere an email is
// expected for host users.
func (id Identity) Email() string {
	return fmt.Sprintf("tg%d@telegram.user", id.ID)
}

// DisplayName prefers the username, falling back to the first name.
func (id Identity) DisplayName() string {
	if id.Username != "" {
		return "@" + id.Username
	}
	return id.FirstName
}

// FromEnv returns the container identity when present.
func FromEnv() (Identity, bool) {
	raw := os.Getenv(InitDataEnv)
	if raw == "" {
		return Identity{}, false
	}
	id, err := ParseInitData(raw)
	if err != nil {
		return Identity{}, false
	}
	return id, true
}

// ParseInitData decodes a Telegram WebApp init-data query string. Only
// the user field matters here; the signature is the container's
// concern.
func ParseInitData(raw string) (Identity, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("host: parse init data: %w", err)
	}
	userJSON := values.Get("user")
	if userJSON == "" {
		return Identity{}, fmt.Errorf("host: init data has no user")
	}
	var u struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		Username  string `json:"username"`
		Language  string `json:"language_code"`
	}
	if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
		return Identity{}, fmt.Errorf("host: decode user: %w", err)
	}
	if u.ID == 0 {
		return Identity{}, fmt.Errorf("host: user has no id")
	}
	return Identity{ID: u.ID, FirstName: u.FirstName, Username: u.Username, Language: u.Language}, nil
}
