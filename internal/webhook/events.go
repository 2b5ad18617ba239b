package webhook

// webhookPayload mirrors the platform's callback body: a batch of events,
// each optionally carrying a message.
type webhookPayload struct {
	Events []inboundEvent `json:"events"`
}

type inboundEvent struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Message   *inboundMessage `json:"message,omitempty"`
}

type inboundMessage struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	FileName string `json:"fileName,omitempty"`
}
