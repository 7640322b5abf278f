package types

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one canonical conversation message, provider-agnostic.
// Images carries base64-encoded JPEG payloads. Prefix marks a trailing
// assistant message whose content the backend should echo before
// generating new tokens (assistant priming).
type Message struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
	Prefix  bool     `json:"prefix,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message, optionally carrying images.
func UserMessage(content string, images ...string) Message {
	return Message{Role: RoleUser, Content: content, Images: images}
}

// AssistantPrefix builds a primed assistant message. Backends that support
// prefix semantics continue generation from this content.
func AssistantPrefix(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Prefix: true}
}
