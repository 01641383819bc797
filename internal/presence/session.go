package presence

import (
	"time"

	"github.com/marketpulse/presence-backend/internal/types"
)

type ContentType string

const (
	ContentStock    ContentType = "stock"
	ContentBlog     ContentType = "blog"
	ContentBanner   ContentType = "banner"
	ContentDiscover ContentType = "discover"
)

func ParseContentType(s string) (ContentType, bool) {
	switch s {
	case "stock":
		return ContentStock, true
	case "blog":
		return ContentBlog, true
	case "banner":
		return ContentBanner, true
	case "discover":
		return ContentDiscover, true
	default:
		return "", false
	}
}

// Scope identifies the document a session is watching.
// A session keeps one scope for its whole lifetime; changing
// documents means a new connection and a new session.
type Scope struct {
	Type ContentType
	ID   string
}

// Session is one connected editor's presence record.
type Session struct {
	ID             string
	UserID         string
	UserName       string
	UserColor      string
	AvatarURL      string
	Scope          Scope
	Field          string
	CursorPosition *int
	LastActive     time.Time
}

// ToWire converts a session to its wire representation.
func (s Session) ToWire() types.Presence {
	return types.Presence{
		ID:             s.ID,
		UserID:         s.UserID,
		UserName:       s.UserName,
		UserColor:      s.UserColor,
		AvatarURL:      s.AvatarURL,
		ContentType:    string(s.Scope.Type),
		ContentID:      s.Scope.ID,
		Field:          s.Field,
		CursorPosition: s.CursorPosition,
		LastActive:     s.LastActive.UnixMilli(),
	}
}

// FromWire builds a session from a client join payload. The id is
// dropped: ids are assigned by the registry, never by clients.
func FromWire(p types.Presence, scope Scope) Session {
	return Session{
		UserID:         p.UserID,
		UserName:       p.UserName,
		UserColor:      p.UserColor,
		AvatarURL:      p.AvatarURL,
		Scope:          scope,
		Field:          p.Field,
		CursorPosition: p.CursorPosition,
	}
}
