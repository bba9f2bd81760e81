package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"
)

// Entry represents an audit log entry for a mutating call. Change timeline
// calls also record the change kind, the window they touched and how many
// changes they wrote or removed.
type Entry struct {
	ID            string
	OfficeID      string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	ProjectID     string
	ChangeKind    string
	WindowStart   *time.Time
	WindowEnd     *time.Time
	ChangeCount   int
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WithWindow records the span of change dates a call touched.
func (e Entry) WithWindow(start, end time.Time) Entry {
	if start.IsZero() || end.IsZero() {
		return e
	}
	start, end = start.UTC(), end.UTC()
	e.WindowStart, e.WindowEnd = &start, &end
	return e
}

// FromRequest fills request-derived fields of an entry.
func FromRequest(r *http.Request, entry Entry) Entry {
	if r == nil {
		return entry
	}
	entry.IP = ClientIP(r)
	entry.UserAgent = r.UserAgent()
	return entry
}
