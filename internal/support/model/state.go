package model

// Detail field names within ConversationState.Details. Values are free text
// extracted by the triage worker.
const (
	DetailEmail             = "email"
	DetailPriority          = "priority"
	DetailDescription       = "description"
	DetailOccurrence        = "occurrence"
	DetailCategory          = "category"
	DetailShortDescription  = "short_description"
	DetailAvailability      = "availability"
	DetailContactPreference = "contact_preference"
	DetailLocation          = "location"
)

// mandatoryDetails must all be non-empty before AllDetailsGiven may be
// asserted; an early model claim with gaps is ignored.
var mandatoryDetails = []string{
	DetailLocation,
	DetailDescription,
	DetailOccurrence,
	DetailAvailability,
	DetailContactPreference,
}

// ConversationState is the unit of durability, keyed by conversation id. It is
// created lazily on the first message, mutated every turn exclusively through
// Apply, and survives restarts via the checkpoint store.
type ConversationState struct {
	ConversationID string `json:"conversation_id"`

	// Messages is the single source of truth for conversation history.
	Messages []Message `json:"messages"`

	// Intent is the routing decision produced on the last triage pass.
	Intent Intent `json:"intent,omitempty"`

	// Details accumulates extracted ticket fields. Monotonic union: a field is
	// only ever overwritten by a new non-empty value, never cleared, except on
	// the cycle reset that follows a successful ticket creation.
	Details map[string]string `json:"extracted_details,omitempty"`

	// AllDetailsGiven is asserted by triage once every mandatory field is
	// present. Sticky until cycle reset.
	AllDetailsGiven bool `json:"all_details_given"`

	// Stage flags for the gather -> summarize -> confirm -> consult ->
	// confirm -> create cycle. Set true as stages complete; cleared only by
	// the cycle reset.
	ConfirmationAsked  bool `json:"confirmation_asked"`
	KnowledgeConsulted bool `json:"knowledge_consulted"`
	SummaryShown       bool `json:"summary_shown"`

	// RecentTicketID is the last successfully created ticket. Its presence
	// gates the diagnostic node and post-ticket routing.
	RecentTicketID string `json:"recent_ticket_id,omitempty"`

	// Cached consult output carried into downstream worker prompts until the
	// cycle resets.
	KnowledgeAdvice string `json:"knowledge_advice,omitempty"`
	IoTAdvice       string `json:"iot_advice,omitempty"`
	IoTConsulted    bool   `json:"iot_consulted,omitempty"`

	// Profile fields resolved from the user store, re-stamped each turn.
	UserName      string `json:"user_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	MobilePhone   string `json:"mobile_phone,omitempty"`
	Address       string `json:"address,omitempty"`
	CurrentDate   string `json:"current_date,omitempty"`
}

// NewConversationState initialises an empty state for a conversation id.
func NewConversationState(conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Details:        map[string]string{},
	}
}

// Detail returns the value for a detail field, or fallback when unset.
func (s *ConversationState) Detail(key, fallback string) string {
	if s.Details == nil {
		return fallback
	}
	if v := s.Details[key]; v != "" {
		return v
	}
	return fallback
}

// MandatoryDetailsComplete reports whether every field required for a ticket
// summary is present.
func (s *ConversationState) MandatoryDetailsComplete() bool {
	for _, k := range mandatoryDetails {
		if s.Detail(k, "") == "" {
			return false
		}
	}
	return true
}

// Patch is the only way node executions mutate conversation state. Zero
// values mean "unchanged"; pointer fields distinguish "unset" from "set to
// the zero value".
type Patch struct {
	// Messages are appended to the transcript.
	Messages []Message

	// Intent replaces the stored intent when non-empty.
	Intent Intent

	// Details are merged in; empty values are dropped so a missed extraction
	// never clears an earlier one.
	Details map[string]string

	// AllDetailsGiven true is honored only once the merged details satisfy
	// MandatoryDetailsComplete. False is ignored (sticky flag).
	AllDetailsGiven bool

	// Stage flags: true sets the flag; nil/false leaves it alone. Clearing
	// happens only through CycleReset.
	ConfirmationAsked  bool
	KnowledgeConsulted bool
	SummaryShown       bool

	// RecentTicketID: nil unchanged, pointer to "" clears, otherwise sets.
	RecentTicketID *string

	KnowledgeAdvice string
	IoTAdvice       string
	IoTConsulted    bool

	UserName      string
	CustomerEmail string
	MobilePhone   string
	Address       string
	CurrentDate   string

	// CycleReset marks a completed ticket creation: the confirmation-cycle
	// flags and AllDetailsGiven drop so a fresh escalation can begin.
	CycleReset bool
}

// StringPtr is a convenience for RecentTicketID patches.
func StringPtr(s string) *string { return &s }

// Apply folds a patch into the state under the documented merge semantics.
// This is the single place state transitions happen; nodes never touch the
// state directly.
func (s *ConversationState) Apply(p Patch) {
	s.Messages = append(s.Messages, p.Messages...)

	if p.Intent != "" {
		s.Intent = p.Intent
	}

	if len(p.Details) > 0 {
		if s.Details == nil {
			s.Details = map[string]string{}
		}
		for k, v := range p.Details {
			if v != "" {
				s.Details[k] = v
			}
		}
	}

	if p.AllDetailsGiven && s.MandatoryDetailsComplete() {
		s.AllDetailsGiven = true
	}

	if p.ConfirmationAsked {
		s.ConfirmationAsked = true
	}
	if p.KnowledgeConsulted {
		s.KnowledgeConsulted = true
	}
	if p.SummaryShown {
		s.SummaryShown = true
	}

	if p.RecentTicketID != nil {
		s.RecentTicketID = *p.RecentTicketID
	}

	if p.KnowledgeAdvice != "" {
		s.KnowledgeAdvice = p.KnowledgeAdvice
	}
	if p.IoTAdvice != "" {
		s.IoTAdvice = p.IoTAdvice
	}
	if p.IoTConsulted {
		s.IoTConsulted = true
	}

	if p.UserName != "" {
		s.UserName = p.UserName
	}
	if p.CustomerEmail != "" {
		s.CustomerEmail = p.CustomerEmail
	}
	if p.MobilePhone != "" {
		s.MobilePhone = p.MobilePhone
	}
	if p.Address != "" {
		s.Address = p.Address
	}
	if p.CurrentDate != "" {
		s.CurrentDate = p.CurrentDate
	}

	if p.CycleReset {
		s.ConfirmationAsked = false
		s.KnowledgeConsulted = false
		s.SummaryShown = false
		s.AllDetailsGiven = false
	}
}
