package provider

import "encoding/json"

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type MessageRequest struct {
	Model         string   `json:"model"`
	MaxTokens     int      `json:"max_tokens"`
	Messages      []Message `json:"messages"`
	System        any      `json:"system,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type MessageResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

type Model struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type ModelsResponse struct {
	Data    []Model `json:"data"`
	HasMore bool    `json:"has_more"`
}

type APIErrorEnvelope struct {
	Type      string         `json:"type"`
	Error     APIErrorDetail `json:"error"`
	RequestID string         `json:"request_id"`
}

type APIErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type APIError struct {
	StatusCode int
	Envelope   APIErrorEnvelope
	Body       []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Envelope.Error.Message != "" {
		return e.Envelope.Error.Type + ": " + e.Envelope.Error.Message
	}
	return string(e.Body)
}

func ParseAPIErrorEnvelope(body []byte) (APIErrorEnvelope, bool) {
	var envelope APIErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return APIErrorEnvelope{}, false
	}
	if envelope.Error.Type == "" && envelope.Error.Message == "" {
		return APIErrorEnvelope{}, false
	}
	return envelope, true
}
