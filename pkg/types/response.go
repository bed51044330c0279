package types

// ErrorBody is the JSON shape of every failed API response.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// WebhookAck acknowledges a verified provider event.
type WebhookAck struct {
	Received bool `json:"received"`
}
