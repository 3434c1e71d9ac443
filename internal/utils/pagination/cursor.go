package pagination

import (
	"encoding/base64"
	"fmt"

	"github.com/goccy/go-json"

	svcErr "github.com/oggyb/scene-match/internal/errors"
)

// Cursor is the opaque pagination state we encode/decode.
// MatchID + MatchedUnix (in millis) establish a stable cursor over
// matches ordered by matched_at DESC, id DESC.
type Cursor struct {
	MatchID     string `json:"match_id"`
	MatchedUnix int64  `json:"matched_unix,omitempty"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.MatchID == "" && c.MatchedUnix == 0
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, svcErr.Validation("invalid pagination token")
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, svcErr.Validation("invalid pagination token")
	}
	return c, nil
}
