// Package storage implements the relay's key/value resource store: a
// contract for opaque versioned JSON documents (accounts, access
// control, channel metadata, login settings, the persisted symbol
// cache) and a SQLite-backed implementation.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Collection names for the resource store.
const (
	CollectionAccounts      = "accounts"
	CollectionAccessControl = "access_control"
	CollectionChannelInfo   = "channel_info"
	CollectionLoginSettings = "login_settings"
	CollectionSymbolCache   = "symbol_cache"
)

// SingletonKey is the fixed key used by collections that hold exactly
// one document (ACL, channel info, login settings, symbol cache).
const SingletonKey = "default"

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("resource not found")

// Resource is the per-collection document accessor contract. Documents
// are opaque JSON beyond the fields the core explicitly reads.
type Resource interface {
	// Exists reports whether the collection holds any document.
	Exists() bool
	Get(key string) (json.RawMessage, error)
	Set(key string, doc json.RawMessage) error
	Delete(key string) error
	// Keys returns all document keys in a stable sorted order, for
	// pagination.
	Keys() ([]string, error)
}

// Store aggregates the resource collections the relay core consumes.
type Store interface {
	Accounts() Resource
	AccessControlList() Resource
	ChannelInfo() Resource
	LoginSettings() Resource
	SymbolCache() Resource
	Close() error
}

// GetSingleton fetches the sole document of a singleton collection.
func GetSingleton(r Resource) (json.RawMessage, error) {
	return r.Get(SingletonKey)
}

// SetSingleton stores the sole document of a singleton collection.
func SetSingleton(r Resource, doc json.RawMessage) error {
	return r.Set(SingletonKey, doc)
}

// accountIdentity is the subset of an account document the core reads.
// Everything else in the document is opaque.
type accountIdentity struct {
	Profile struct {
		Server struct {
			PlatformID  string `json:"xplatformid"`
			DisplayName string `json:"displayname"`
		} `json:"server"`
	} `json:"profile"`
}

// AccountIdentity extracts the platform id and display name from an
// account document.
func AccountIdentity(doc json.RawMessage) (userID, displayName string, err error) {
	var ident accountIdentity
	if err := json.Unmarshal(doc, &ident); err != nil {
		return "", "", fmt.Errorf("failed to parse account document: %w", err)
	}
	return ident.Profile.Server.PlatformID, ident.Profile.Server.DisplayName, nil
}

// NewAccountDocument builds a minimal account document for a first-time
// login. Subsequent writes merge into this skeleton.
func NewAccountDocument(userID, displayName string) json.RawMessage {
	var ident accountIdentity
	ident.Profile.Server.PlatformID = userID
	ident.Profile.Server.DisplayName = displayName
	doc, _ := json.Marshal(ident)
	return doc
}

// accessControl is the access control list document layout: ordered
// allow and deny pattern lists matched against platform ids.
type accessControl struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// DefaultAccessControlDocument permits everyone.
func DefaultAccessControlDocument() json.RawMessage {
	doc, _ := json.Marshal(accessControl{Allow: []string{"*"}, Deny: []string{}})
	return doc
}

// CheckAccess evaluates an ACL document against a platform id. Deny
// patterns win over allow patterns; an id matching no allow pattern is
// denied.
func CheckAccess(doc json.RawMessage, userID string) (bool, error) {
	var acl accessControl
	if err := json.Unmarshal(doc, &acl); err != nil {
		return false, fmt.Errorf("failed to parse access control document: %w", err)
	}

	for _, pattern := range acl.Deny {
		if matchPattern(pattern, userID) {
			return false, nil
		}
	}
	for _, pattern := range acl.Allow {
		if matchPattern(pattern, userID) {
			return true, nil
		}
	}
	return false, nil
}

// matchPattern matches an id against a pattern where '*' matches any
// run of characters.
func matchPattern(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := len(parts) - 1
	for _, part := range parts[1:last] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, parts[last])
}
