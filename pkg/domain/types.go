package domain

import "time"

type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTeacher UserRole = "TEACHER"
)

// MessageRole tags who authored a message. SYSTEM is the tutor's reply,
// not a system prompt.
type MessageRole string

const (
	MessageRoleUser   MessageRole = "USER"
	MessageRoleSystem MessageRole = "SYSTEM"
)

type AIModel string

const (
	AIModelGPT4oMini AIModel = "GPT_4O_MINI"
)

// ParseAIModel reports whether raw names a supported model.
func ParseAIModel(raw string) (AIModel, bool) {
	switch AIModel(raw) {
	case AIModelGPT4oMini:
		return AIModelGPT4oMini, true
	default:
		return "", false
	}
}

// Tool is one of the AI-assisted analyses a student can run on selected text.
type Tool string

const (
	ToolNone       Tool = "NONE"
	ToolGrammar    Tool = "GRAMMAR"
	ToolVocabulary Tool = "VOCABULARY"
	ToolSpelling   Tool = "SPELLING"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Identity is the verified caller as asserted by the identity provider.
type Identity struct {
	Subject string
	Email   string
	Name    string
	OrgID   string
	OrgRole string
}

type Workspace struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ActiveAI    AIModel   `json:"activeAi"`
	PDFURL      string    `json:"pdfUrl"`
	StorageKey  string    `json:"-"`
	Notes       *string   `json:"notes"`
	CreatorID   string    `json:"creatorId"`
	ClassroomID string    `json:"classroomId,omitempty"`
	MemberIDs   []string  `json:"memberIds,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasAccess reports whether userID created the workspace or it was shared with them.
func (w Workspace) HasAccess(userID string) bool {
	if w.CreatorID == userID {
		return true
	}
	for _, id := range w.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Context is the conversation state of one workspace.
type Context struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	AIModel     AIModel   `json:"aiModel"`
	VectorIndex string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Message struct {
	ID        string      `json:"id"`
	ContextID string      `json:"contextId"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Exchange is the result of one round trip to the tutor.
type Exchange struct {
	Reply         string  `json:"aiResponse"`
	UserMessage   Message `json:"newUserMessage"`
	SystemMessage Message `json:"newSystemMessage"`
}

type Classroom struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClassroomMember summarizes one student's activity inside a classroom.
type ClassroomMember struct {
	User           User       `json:"user"`
	WorkspaceCount int        `json:"workspaceCount"`
	TotalMessages  int        `json:"totalMessages"`
	LastMessageAt  *time.Time `json:"lastMessageAt"`
}
