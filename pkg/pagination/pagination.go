package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// cursor tokens are 8 bytes of unix nanoseconds followed by the 16-byte id
const cursorLen = 8 + 16

var ErrBadCursor = errors.New("malformed page cursor")

// Params is what a list endpoint accepts: a page size and the opaque
// cursor returned with the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row served, by creation time with the id as tie
// breaker.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer fetches one row past the page so Trim can tell whether
// another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(c Cursor) string {
	var raw [cursorLen]byte
	binary.BigEndian.PutUint64(raw[:8], uint64(c.CreatedAt.UnixNano()))
	copy(raw[8:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// ParseCursor returns nil for an empty token.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != cursorLen {
		return nil, ErrBadCursor
	}
	id, err := uuid.FromBytes(raw[8:])
	if err != nil {
		return nil, ErrBadCursor
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Keyset is a gorm scope that orders newest first and resumes after the
// cursor in p. It reads one extra row; pass the result through Trim.
func Keyset(p Params) (func(*gorm.DB) *gorm.DB, error) {
	after, err := ParseCursor(p.Cursor)
	if err != nil {
		return nil, err
	}
	return func(q *gorm.DB) *gorm.DB {
		if after != nil {
			q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
		}
		return q.Order("created_at DESC").Order("id DESC").Limit(LimitWithBuffer(p.Limit))
	}, nil
}

// Trim cuts a buffered result set down to limit rows and returns the cursor
// for the next page, or "" on the last page.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(cursorOf(page[len(page)-1]))
}
