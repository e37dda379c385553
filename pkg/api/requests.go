package api

import "encoding/json"

type ChatRequest struct {
	// message array is required, dive in and deep validate
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`

	// the model to send request to. `<provider>/<model>` pins the request to a
	// registered provider, a bare model id lets the gateway choose.
	Model string `json:"model" binding:"required"`

	// Can be string or []string
	Stop *Stop `json:"stop,omitempty"`

	// Enable streaming, defaults to `false` (empty)
	Stream bool `json:"stream,omitempty"`

	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	// LLM Parameters
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Seed        int      `json:"seed,omitempty"`

	// Tool calling
	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice interface{} `json:"tool_choice,omitempty"` // "none", "auto", or object

	User string `json:"user,omitempty"`
}

// Clone returns a shallow copy whose message slice can be modified safely.
func (r *ChatRequest) Clone() *ChatRequest {
	c := *r
	c.Messages = append([]ChatMessage(nil), r.Messages...)
	return &c
}

// PromptText concatenates every text part of the conversation.
func (r *ChatRequest) PromptText() string {
	var out []byte
	for _, m := range r.Messages {
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, m.Content.String()...)
	}
	return string(out)
}

type ChatMessage struct {
	Role       string     `json:"role" binding:"required,oneof=user assistant system tool"`
	Content    Content    `json:"content"` // string or []ContentPart
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"` // For assistant messages
	// Reasoning holds model thinking split out of the visible content.
	Reasoning string `json:"reasoning,omitempty"`
}

// Content handles the union type: string | []ContentPart
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent wraps a plain string.
func TextContent(s string) Content {
	return Content{Text: s}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	// Try string first
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	// Try array of parts
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Parts)
	}
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// String flattens the content to text, ignoring non-text parts.
func (c Content) String() string {
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type Stop struct {
	Val []string
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &s.Val)
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	s.Val = []string{str}
	return nil
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if len(s.Val) == 1 {
		return json.Marshal(s.Val[0])
	}
	return json.Marshal(s.Val)
}

type Tool struct {
	Type     string              `json:"type"` // "function"
	Function FunctionDescription `json:"function"`
}

type FunctionDescription struct {
	Description string                 `json:"description,omitempty"`
	Name        string                 `json:"name"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema object
}

type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"
)

// ProviderSelectRequest carries selection constraints over HTTP.
type ProviderSelectRequest struct {
	Candidates             []string `json:"candidates,omitempty"`
	MinQualityScore        float64  `json:"min_quality_score" binding:"gte=0,lte=1"`
	RequireQualityScore    bool     `json:"require_quality_score,omitempty"`
	RequirePerformanceData bool     `json:"require_performance_data,omitempty"`
	MaxCostPerRequest      *float64 `json:"max_cost_per_request,omitempty" binding:"omitempty,gte=0"`
	RequiredCapabilities   []string `json:"required_capabilities,omitempty" binding:"omitempty,dive,capability"`
}

// EvaluateRequest selects the model to benchmark.
type EvaluateRequest struct {
	Model string `json:"model" binding:"required"`
}
