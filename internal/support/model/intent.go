package model

import "strings"

// Intent is the router's classification of what the current turn should do
// next. The set is closed; anything a worker emits outside of it is coerced
// to IntentChat.
type Intent string

const (
	IntentChat         Intent = "chat"
	IntentLookup       Intent = "lookup"
	IntentEscalate     Intent = "escalate"
	IntentTechnical    Intent = "technical"
	IntentAnalyze      Intent = "analyze"
	IntentSystemHealth Intent = "system_health"
	IntentOutOfScope   Intent = "out_of_scope"
	IntentEnd          Intent = "end"
)

// ParseIntent normalises a raw worker-produced intent string. Unknown values
// fall back to chat so a drifting model never breaks routing.
func ParseIntent(raw string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case IntentChat:
		return IntentChat
	case IntentLookup:
		return IntentLookup
	case IntentEscalate:
		return IntentEscalate
	case IntentTechnical:
		return IntentTechnical
	case IntentAnalyze:
		return IntentAnalyze
	case IntentSystemHealth:
		return IntentSystemHealth
	case IntentOutOfScope:
		return IntentOutOfScope
	case IntentEnd:
		return IntentEnd
	default:
		return IntentChat
	}
}

func (i Intent) String() string {
	return string(i)
}
