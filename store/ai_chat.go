package store

// PlaceholderChatTitle is the title assigned to a freshly created chat. The AI
// service replaces it with a truncation of the first user message.
const PlaceholderChatTitle = "New Chat"

// Message roles persisted in ai_messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AIChat is one conversation thread. At most one chat per user is active at
// any observable moment.
type AIChat struct {
	ID        int32
	UserID    int32
	Title     string
	Summary   string
	IsActive  bool
	CreatedTs int64
	UpdatedTs int64
}

// AIMessage is one turn in a chat, ordered by creation.
type AIMessage struct {
	ID        int64
	ChatID    int32
	Role      string
	Content   string
	CreatedTs int64
}

// AISettings is the per-user provider and model selection. Single row per user.
type AISettings struct {
	UserID    int32
	Provider  string
	Model     string
	UpdatedTs int64
}
