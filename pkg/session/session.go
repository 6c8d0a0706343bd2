// Package session provides keyed, expiring state for the interactive
// redesign flow: the uploaded photo, the last chosen style and the last
// generated image.
//
// A session replaces process-wide "current image" state. Each client holds
// a session ID and every request names it, so concurrent users never see
// each other's photos.
//
// Backends:
//   - [MemoryStore]: in-process map, for development and single replicas
//   - [FileStore]: JSON files in a directory
//   - [RedisStore]: Redis with native key expiry, for several replicas
//   - [MongoStore]: MongoDB with a TTL index on expires_at
//
// # Usage
//
//	sess := session.New(session.DefaultTTL)
//	sess.SetSource(photo, "image/png")
//	if err := store.Set(ctx, sess); err != nil {
//	    return err
//	}
//
//	sess, err := store.Get(ctx, id)
//	if err != nil {
//	    return err
//	}
//	if sess == nil {
//	    // Session not found or expired
//	}
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	rerrors "github.com/matzehuels/restyle/pkg/errors"
)

// ErrNilSession is returned by Set when given a nil session.
var ErrNilSession = errors.New("nil session")

// Default durations.
const (
	// DefaultTTL is how long an idle session is kept.
	DefaultTTL = time.Hour

	// DefaultCleanupInterval is how often the server sweeps expired sessions.
	DefaultCleanupInterval = 10 * time.Minute
)

// Session is one user's redesign state.
type Session struct {
	ID string `json:"id" bson:"_id"`

	// Source is the uploaded photo exactly as received.
	Source     []byte `json:"source,omitempty" bson:"source,omitempty"`
	SourceType string `json:"source_type,omitempty" bson:"source_type,omitempty"`

	// Style and Quality describe the last generation.
	Style   string `json:"style,omitempty" bson:"style,omitempty"`
	Quality int    `json:"quality,omitempty" bson:"quality,omitempty"`

	// Result is the last generated JPEG.
	Result []byte `json:"result,omitempty" bson:"result,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

// New creates an empty session with a random UUID.
func New(ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// HasSource reports whether a photo has been uploaded.
func (s *Session) HasSource() bool { return len(s.Source) > 0 }

// HasResult reports whether an image has been generated.
func (s *Session) HasResult() bool { return len(s.Result) > 0 }

// SetSource stores an uploaded photo. A previous result is kept until the
// next generation replaces it.
func (s *Session) SetSource(data []byte, contentType string) {
	s.Source = data
	s.SourceType = contentType
	s.UpdatedAt = time.Now().UTC()
}

// SetResult records a generated image and the options that produced it.
func (s *Session) SetResult(data []byte, style string, quality int) {
	s.Result = data
	s.Style = style
	s.Quality = quality
	s.UpdatedAt = time.Now().UTC()
}

// Reset clears the photo, the result and the style. The ID and expiry are
// unchanged.
func (s *Session) Reset() {
	s.Source = nil
	s.SourceType = ""
	s.Result = nil
	s.Style = ""
	s.Quality = 0
	s.UpdatedAt = time.Now().UTC()
}

// Touch extends the session's expiry to ttl from now.
func (s *Session) Touch(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// clone returns a deep copy so stores never share byte slices with callers.
func (s *Session) clone() *Session {
	c := *s
	c.Source = append([]byte(nil), s.Source...)
	c.Result = append([]byte(nil), s.Result...)
	if len(c.Source) == 0 {
		c.Source = nil
	}
	if len(c.Result) == 0 {
		c.Result = nil
	}
	return &c
}

// ValidateID checks that id is a canonical lowercase UUID, as produced by
// New. Stores rely on this before building file paths or keys from it.
func ValidateID(id string) error {
	if id == "" {
		return rerrors.New(rerrors.ErrCodeInvalidSession, "session id cannot be empty")
	}
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return rerrors.New(rerrors.ErrCodeInvalidSession, "malformed session id %q", id)
	}
	return nil
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a session by ID.
	// Returns nil, nil if the session doesn't exist or has expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Set stores a session, replacing any previous version.
	Set(ctx context.Context, sess *Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sessions (may be a no-op for backends with
	// native expiry).
	Cleanup(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
