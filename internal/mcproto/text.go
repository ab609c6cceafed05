package mcproto

import (
	"encoding/json"
	"strings"

	"github.com/Tnze/go-mc/chat"
)

// plainText renders a chat component as text without formatting codes.
func plainText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if s[0] == '{' || s[0] == '[' || s[0] == '"' {
		var msg chat.Message
		if err := json.Unmarshal([]byte(s), &msg); err == nil {
			return msg.ClearString()
		}
	}
	return s
}
