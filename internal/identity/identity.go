// Package identity supplies the stable editor identity the presence
// client sends on join. The server core treats identity as opaque
// input and never generates it.
package identity

import (
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// palette matches the colors the admin UI renders avatars with.
var palette = []string{
	"#E57373", "#64B5F6", "#81C784", "#FFD54F",
	"#BA68C8", "#4DB6AC", "#FF8A65", "#A1887F",
}

type Identity struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ColorFor derives a color deterministically from a user id, so the
// same editor renders the same color on every client.
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Load reads a cached identity from path, creating and persisting a
// fresh one if none exists. This is the file-backed analog of the
// browser's localStorage identity: the user id survives reconnects.
func Load(path, userName string) (Identity, error) {
	if data, err := os.ReadFile(path); err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err == nil && id.UserID != "" {
			if userName != "" {
				id.UserName = userName
			}
			id.UserColor = ColorFor(id.UserID)
			return id, nil
		}
	}

	id := Identity{
		UserID:   uuid.NewString(),
		UserName: userName,
	}
	id.UserColor = ColorFor(id.UserID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return id, err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return id, err
	}
	return id, os.WriteFile(path, data, 0o600)
}
