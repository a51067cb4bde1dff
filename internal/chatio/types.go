package chatio

// Message is one inbound chat event from the gateway. Commands, free-text
// answers and photo uploads all arrive through this shape.
type Message struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

// ReplyRequest is the outbound frame for both text and photo replies.
type ReplyRequest struct {
	Type    string `json:"type"`
	ChatID  int64  `json:"chat_id"`
	Text    string `json:"text,omitempty"`
	Photo   string `json:"photo,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime,omitempty"`
}

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)
