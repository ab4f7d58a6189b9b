package model

// WorkerDeps is the identity bundle handed to every worker run. Workers use
// it to personalise prompts and to fill backend calls; it never changes
// mid-turn.
type WorkerDeps struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	UserName       string `json:"user_name,omitempty"`
	UserEmail      string `json:"user_email,omitempty"`
	UserPhone      string `json:"user_phone,omitempty"`
	UserAddress    string `json:"user_address,omitempty"`
	WorkflowID     string `json:"workflow_id,omitempty"`
	CurrentDate    string `json:"current_date,omitempty"`
}

// TurnInput is one inbound message to the support graph.
type TurnInput struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	UserID         string `json:"user_id,omitempty"`
	WorkflowID     string `json:"workflow_id,omitempty"`
}

// TurnResult is what a completed graph walk hands back to the transport.
type TurnResult struct {
	Response  string `json:"response"`
	AgentName string `json:"agent"`
	// State is the checkpointed state after the turn, for callers that
	// inspect it (tests, telemetry ingest).
	State *ConversationState `json:"-"`
}

// UserProfile is the stored identity record resolved per turn.
type UserProfile struct {
	ID          string
	Name        string
	Email       string
	MobilePhone string
	Address     string
	WorkflowID  string
}
