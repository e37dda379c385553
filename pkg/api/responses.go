package api

type ChatResponse struct {
	ID                string         `json:"id"`
	Choices           []Choice       `json:"choices"`
	Created           int64          `json:"created"`
	Model             string         `json:"model"`
	Object            string         `json:"object"` // "chat.completion" or "chat.completion.chunk"
	SystemFingerprint string         `json:"system_fingerprint,omitempty"`
	Usage             *ResponseUsage `json:"usage,omitempty"`

	// Provider is stamped by the gateway with the id that served the request.
	Provider string `json:"provider,omitempty"`

	Error *ErrorResponse `json:"error,omitempty"`
}

// Content returns the text of the first choice, reading the streaming delta
// when no full message is present.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	c := r.Choices[0]
	if c.Message != nil {
		return c.Message.Content.String()
	}
	if c.Delta != nil {
		return c.Delta.Content.String()
	}
	return ""
}

// Finish returns the normalized finish reason of the first choice.
func (r *ChatResponse) Finish() FinishReason {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return NormalizeFinishReason(r.Choices[0].FinishReason)
}

// TotalTokens reports usage, summing the parts when the upstream omitted the total.
func (r *ChatResponse) TotalTokens() int {
	if r == nil || r.Usage == nil {
		return 0
	}
	if r.Usage.TotalTokens > 0 {
		return r.Usage.TotalTokens
	}
	return r.Usage.PromptTokens + r.Usage.CompletionTokens
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

type Choice struct {
	Index        int            `json:"index"`
	Message      *ChatMessage   `json:"message,omitempty"` // For non-streaming
	Delta        *ChatMessage   `json:"delta,omitempty"`   // For streaming
	FinishReason string         `json:"finish_reason"`
	Error        *ErrorResponse `json:"error,omitempty"`
}

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishError  FinishReason = "error"
)

// NormalizeFinishReason folds upstream specific reasons into the three we track.
func NormalizeFinishReason(s string) FinishReason {
	switch s {
	case "":
		return ""
	case "stop", "end_turn", "tool_calls", "function_call", "stop_sequence":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	default:
		return FinishError
	}
}

type ResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ErrorResponse struct {
	Code     interface{}            `json:"code,omitempty"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

type StreamResult struct {
	Response *ChatResponse
	Err      error
}
