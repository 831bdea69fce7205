package service

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Field is a three-state update value: untouched, set or cleared.
type Field[T any] struct {
	Set   bool
	Clear bool
	Value T
}

func SetField[T any](v T) Field[T] { return Field[T]{Set: true, Value: v} }

func ClearField[T any]() Field[T] { return Field[T]{Set: true, Clear: true} }

// ShareUpdate lists every share attribute an owner may change. Anything
// not listed here (token, counters, file) is immutable.
type ShareUpdate struct {
	ExpiresAt     Field[time.Time]
	DownloadLimit Field[int64]
	AllowPreview  Field[bool]
	// Password set to "" or cleared removes the gate.
	Password Field[string]
}

// Empty reports whether the update changes nothing.
func (u ShareUpdate) Empty() bool {
	return !u.ExpiresAt.Set && !u.DownloadLimit.Set && !u.AllowPreview.Set && !u.Password.Set
}

var shareUpdateKeys = map[string]bool{
	"expires_at":     true,
	"download_limit": true,
	"allow_preview":  true,
	"password":       true,
}

// ParseShareUpdate builds a ShareUpdate from a raw JSON object. Keys outside
// the allow-list, including token, download_count and file_id, are
// rejected with ErrInvalidArgument. JSON null clears a field.
func ParseShareUpdate(raw map[string]json.RawMessage) (ShareUpdate, error) {
	var u ShareUpdate
	var rejected []string
	for key := range raw {
		if !shareUpdateKeys[key] {
			rejected = append(rejected, key)
		}
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return u, invalidArgf("fields cannot be updated: %v", rejected)
	}

	var err error
	if u.ExpiresAt, err = parseField[time.Time](raw, "expires_at"); err != nil {
		return u, err
	}
	if u.DownloadLimit, err = parseField[int64](raw, "download_limit"); err != nil {
		return u, err
	}
	if u.AllowPreview, err = parseField[bool](raw, "allow_preview"); err != nil {
		return u, err
	}
	if u.AllowPreview.Clear {
		return u, invalidArgf("allow_preview cannot be null")
	}
	if u.Password, err = parseField[string](raw, "password"); err != nil {
		return u, err
	}
	if u.Empty() {
		return u, invalidArgf("no fields to update")
	}
	return u, nil
}

func parseField[T any](raw map[string]json.RawMessage, key string) (Field[T], error) {
	msg, ok := raw[key]
	if !ok {
		return Field[T]{}, nil
	}
	if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		return ClearField[T](), nil
	}
	var v T
	if err := json.Unmarshal(msg, &v); err != nil {
		return Field[T]{}, invalidArgf("%s: %v", key, err)
	}
	return SetField(v), nil
}
