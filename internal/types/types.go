package types

// Message types shared by both directions of the presence channel.
// "heartbeat" is client->server only; "sync" is server->client only.
const (
	TypeJoin      = "join"
	TypeUpdate    = "update"
	TypeLeave     = "leave"
	TypeHeartbeat = "heartbeat"
	TypeSync      = "sync"
)

// Presence is the wire form of one editor's session.
// On join the client sends it with an empty id; the server assigns one
// and echoes it back inside the sync roster.
type Presence struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	UserColor      string `json:"userColor"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	ContentType    string `json:"contentType"` // "stock" | "blog" | "banner" | "discover"
	ContentID      string `json:"contentId"`
	Field          string `json:"field,omitempty"`
	CursorPosition *int   `json:"cursorPosition,omitempty"`
	LastActive     int64  `json:"lastActive"` // unix millis, server-observed
}

// Envelope is the single message shape used on the wire.
// Presences is populated for "sync" only.
type Envelope struct {
	Type      string     `json:"type"`
	Presence  *Presence  `json:"presence,omitempty"`
	Presences []Presence `json:"presences,omitempty"`
	Timestamp int64      `json:"timestamp"`
}
