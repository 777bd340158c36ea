package gateway

import "strings"

// Message is one inbound chat event from the Iris websocket.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageJSON `json:"json,omitempty"`
}

// MessageJSON carries the raw platform payload fields the bot reads.
type MessageJSON struct {
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id,omitempty"`
	GuildID string `json:"guild_id,omitempty"`
}

// UserID prefers the platform user id and falls back to the sender name.
func (m *Message) UserID() string {
	if m.JSON != nil && strings.TrimSpace(m.JSON.UserID) != "" {
		return strings.TrimSpace(m.JSON.UserID)
	}
	if m.Sender != nil {
		return strings.TrimSpace(*m.Sender)
	}
	return ""
}

func (m *Message) SenderName() string {
	if m.Sender != nil && strings.TrimSpace(*m.Sender) != "" {
		return strings.TrimSpace(*m.Sender)
	}
	return m.UserID()
}

// Scope is the guild the room belongs to; rooms without one use the room id.
func (m *Message) Scope() string {
	if m.JSON != nil && strings.TrimSpace(m.JSON.GuildID) != "" {
		return strings.TrimSpace(m.JSON.GuildID)
	}
	return strings.TrimSpace(m.Room)
}

type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

// Config is the Iris /config response.
type Config struct {
	Port              int    `json:"port"`
	PollingSpeed      int    `json:"polling_speed"`
	MessageRate       int    `json:"message_rate"`
	WebserverEndpoint string `json:"web_server_endpoint"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)
