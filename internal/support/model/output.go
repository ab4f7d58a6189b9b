package model

// TriageOutput is the structured result of the triage worker. The worker is
// prompted to answer with exactly this JSON shape.
type TriageOutput struct {
	Reasoning   string   `json:"reasoning"`
	MissingInfo []string `json:"missing_info,omitempty"`

	ExtractedEmail             string `json:"extracted_email,omitempty"`
	ExtractedPriority          string `json:"extracted_priority,omitempty"`
	ExtractedDescription       string `json:"extracted_description,omitempty"`
	ExtractedOccurrence        string `json:"extracted_occurrence,omitempty"`
	ExtractedCategory          string `json:"extracted_category,omitempty"`
	ExtractedShortDescription  string `json:"extracted_short_description,omitempty"`
	ExtractedAvailability      string `json:"extracted_availability,omitempty"`
	ExtractedContactPreference string `json:"extracted_contact_preference,omitempty"`
	ExtractedLocation          string `json:"extracted_location,omitempty"`

	Response        string `json:"response"`
	Intent          string `json:"intent"`
	AllDetailsGiven bool   `json:"all_details_given"`
}

// DetailPatch collects the non-empty extracted fields keyed by detail name.
func (o *TriageOutput) DetailPatch() map[string]string {
	fields := map[string]string{
		DetailEmail:             o.ExtractedEmail,
		DetailPriority:          o.ExtractedPriority,
		DetailDescription:       o.ExtractedDescription,
		DetailOccurrence:        o.ExtractedOccurrence,
		DetailCategory:          o.ExtractedCategory,
		DetailShortDescription:  o.ExtractedShortDescription,
		DetailAvailability:      o.ExtractedAvailability,
		DetailContactPreference: o.ExtractedContactPreference,
		DetailLocation:          o.ExtractedLocation,
	}
	out := map[string]string{}
	for k, v := range fields {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// TicketOutput is the structured result of the ticketing worker.
type TicketOutput struct {
	IncidentID    string `json:"incident_id,omitempty"`
	ServiceNowID  string `json:"servicenow_id,omitempty"`
	Status        string `json:"status,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Email         string `json:"email,omitempty"`
	Subject       string `json:"subject,omitempty"`
	LookupSummary string `json:"lookup_summary,omitempty"`
	ActionTaken   string `json:"action_taken,omitempty"`
}

// TelemetryOutput is the structured result of the telemetry worker analysing
// a device payload.
type TelemetryOutput struct {
	Priority                 string `json:"priority"`
	IncidentSubject          string `json:"incident_subject"`
	TechnicalCategory        string `json:"technical_category"`
	ReconstructedDescription string `json:"reconstructed_description"`
	Reasoning                string `json:"reasoning"`
	TicketID                 string `json:"ticket_id,omitempty"`
	TicketStatus             string `json:"ticket_status,omitempty"`
}
