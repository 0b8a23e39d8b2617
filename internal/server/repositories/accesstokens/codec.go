package accesstokens

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pmfstudio/reportgate/internal/common"
	"github.com/pmfstudio/reportgate/internal/server/models"
)

// document layout, one object per token keyed by the token string:
//
//	{
//	  "<token>": {
//	    "label": "A사 홍길동",
//	    "perm": "trial",
//	    "expires_at": "2025-01-31T00:00:00Z",
//	    "created_at": "2025-01-01T00:00:00Z",
//	    "active": true
//	  }
//	}
type recordOut struct {
	Label     string `json:"label"`
	Perm      string `json:"perm"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at,omitempty"`
	Active    bool   `json:"active"`
}

// Records written by older tooling may lack "active" (meaning active) or
// "created_at".
type recordIn struct {
	Label     string `json:"label"`
	Perm      string `json:"perm"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
	Active    *bool  `json:"active"`
}

// naive timestamps carry no zone and are read as UTC
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// EncodeDocument renders tokens as the on-disk JSON document, keys in slice
// order. Non-ASCII labels are written verbatim.
func EncodeDocument(tokens []models.AccessToken) ([]byte, error) {
	if len(tokens) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")

	for i, t := range tokens {
		key, err := marshalNoEscape(t.Token, "", "")
		if err != nil {
			return nil, err
		}
		rec := recordOut{
			Label:     t.Label,
			Perm:      t.Perm.String(),
			ExpiresAt: FormatTime(t.ExpiresAt),
			Active:    t.Active,
		}
		if !t.CreatedAt.IsZero() {
			rec.CreatedAt = FormatTime(t.CreatedAt)
		}
		body, err := marshalNoEscape(rec, "  ", "  ")
		if err != nil {
			return nil, err
		}

		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(body)
		if i < len(tokens)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// DecodeDocument parses the JSON document, keeping records in the order
// they appear. Any structural problem, duplicate token, bad timestamp or
// unknown permission yields common.ErrStoreCorrupt. Blank input is an empty
// store.
func DecodeDocument(data []byte) ([]models.AccessToken, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, corrupt(err)
	}

	var tokens []models.AccessToken
	seen := make(map[string]struct{})

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, corrupt(err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, corrupt(fmt.Errorf("unexpected key %v", tok))
		}
		if _, dup := seen[key]; dup {
			return nil, corrupt(fmt.Errorf("duplicate token %s", common.Fingerprint(key)))
		}
		seen[key] = struct{}{}

		var rec recordIn
		if err := dec.Decode(&rec); err != nil {
			return nil, corrupt(fmt.Errorf("record %s: %w", common.Fingerprint(key), err))
		}
		t, err := rec.toModel(key)
		if err != nil {
			return nil, corrupt(fmt.Errorf("record %s: %w", common.Fingerprint(key), err))
		}
		tokens = append(tokens, t)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, corrupt(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, corrupt(errors.New("trailing data after document"))
	}

	return tokens, nil
}

// FormatTime renders t in UTC, RFC 3339 with as many fractional digits as
// needed.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts RFC 3339 and zone-less ISO-8601 timestamps, returning UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func (r recordIn) toModel(token string) (models.AccessToken, error) {
	if token == "" {
		return models.AccessToken{}, errors.New("empty token")
	}
	perm, err := models.ParsePermission(r.Perm)
	if err != nil {
		return models.AccessToken{}, err
	}
	if r.ExpiresAt == "" {
		return models.AccessToken{}, errors.New("missing expires_at")
	}
	expires, err := ParseTime(r.ExpiresAt)
	if err != nil {
		return models.AccessToken{}, err
	}

	var created time.Time
	if r.CreatedAt != "" {
		if created, err = ParseTime(r.CreatedAt); err != nil {
			return models.AccessToken{}, err
		}
	}

	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return models.AccessToken{
		Token:     token,
		Label:     r.Label,
		Perm:      perm,
		ExpiresAt: expires,
		CreatedAt: created,
		Active:    active,
	}, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func marshalNoEscape(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStoreCorrupt, err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
}
