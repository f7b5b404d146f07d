package domain

// ChatMessage is the provider-agnostic chat message shape sent to the
// completion provider. It is the projection of a Turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
