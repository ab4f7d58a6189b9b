package model

// ================ Config ================

type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"24h"`
	// HistoryTurns bounds how many transcript messages are embedded into
	// worker instructions.
	HistoryTurns int `envconfig:"CONVERSATION_HISTORY_TURNS" default:"10"`
}

// WorkerModelConfig parameterises one Gemini-backed worker variant.
type WorkerModelConfig struct {
	Model       string  `envconfig:"MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"TEMPERATURE" default:"0.2"`
	Retries     int     `envconfig:"RETRIES" default:"2"`
	// MaxToolCalls bounds the tool loop for tool-carrying workers.
	MaxToolCalls int `envconfig:"MAX_TOOL_CALLS" default:"5"`
}

// WorkersConfig groups the per-variant model settings under distinct env
// prefixes (TRIAGE_MODEL, KNOWLEDGE_MODEL, ...).
type WorkersConfig struct {
	Triage     WorkerModelConfig `envconfig:"TRIAGE"`
	Knowledge  WorkerModelConfig `envconfig:"KNOWLEDGE"`
	Ticketing  WorkerModelConfig `envconfig:"TICKETING"`
	Diagnostic WorkerModelConfig `envconfig:"DIAGNOSTIC"`
	Telemetry  WorkerModelConfig `envconfig:"TELEMETRY"`
}

type ServerConfig struct {
	Addr string `envconfig:"SERVER_ADDR" default:":8080"`
}

type MQTTConfig struct {
	Enabled  bool   `envconfig:"MQTT_ENABLED" default:"false"`
	Broker   string `envconfig:"MQTT_BROKER" default:"tcp://broker.hivemq.com:1883"`
	Topic    string `envconfig:"MQTT_TOPIC" default:"gridassist/telemetry"`
	ClientID string `envconfig:"MQTT_CLIENT_ID" default:"gridassist-ingest"`
}
