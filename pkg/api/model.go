package api

import "time"

// Capability is a feature tag attached to a model.
type Capability string

const (
	CapabilityChat            Capability = "chat"
	CapabilityCode            Capability = "code"
	CapabilityVision          Capability = "vision"
	CapabilityStreaming       Capability = "streaming"
	CapabilityFunctionCalling Capability = "function_calling"
	CapabilityEmbeddings      Capability = "embeddings"
	CapabilityReasoning       Capability = "reasoning"
)

// KnownCapabilities is the full vocabulary, in display order.
var KnownCapabilities = []Capability{
	CapabilityChat,
	CapabilityCode,
	CapabilityVision,
	CapabilityStreaming,
	CapabilityFunctionCalling,
	CapabilityEmbeddings,
	CapabilityReasoning,
}

// ParseCapability reports whether s names a known capability.
func ParseCapability(s string) (Capability, bool) {
	for _, c := range KnownCapabilities {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// ModelPricing is expressed in USD per 1000 tokens.
type ModelPricing struct {
	InputPer1K  float64 `mapstructure:"input_per_1k" json:"input_per_1k"`
	OutputPer1K float64 `mapstructure:"output_per_1k" json:"output_per_1k"`
}

// ModelInfo describes a model advertised by a provider. ID is unique within
// its provider.
type ModelInfo struct {
	ID            string        `mapstructure:"id" json:"id"`
	ProviderID    string        `mapstructure:"provider_id" json:"provider_id"`
	Name          string        `mapstructure:"name" json:"name"`
	ContextWindow int           `mapstructure:"context_window" json:"context_window"`
	Capabilities  []Capability  `mapstructure:"capabilities" json:"capabilities"`
	Pricing       *ModelPricing `mapstructure:"pricing" json:"pricing,omitempty"`
	IsFree        bool          `mapstructure:"is_free" json:"is_free"`
}

// HasCapability reports whether the model advertises c.
func (m ModelInfo) HasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// EstimateRequestCost returns the USD cost of a request with the given token
// counts. ok is false when the model carries no pricing and is not free.
func (m ModelInfo) EstimateRequestCost(promptTokens, completionTokens int) (cost float64, ok bool) {
	if m.IsFree {
		return 0, true
	}
	if m.Pricing == nil {
		return 0, false
	}
	cost = m.Pricing.InputPer1K*float64(promptTokens)/1000 +
		m.Pricing.OutputPer1K*float64(completionTokens)/1000
	return cost, true
}

// Model is the public listing shape returned by GET /v1/models.
type Model struct {
	ID            string        `json:"id"`
	Created       int64         `json:"created"`
	Object        string        `json:"object"`
	OwnedBy       string        `json:"owned_by"`
	Provider      string        `json:"provider"`
	Name          string        `json:"name"`
	ContextLength int           `json:"context_length"`
	Capabilities  []Capability  `json:"capabilities"`
	Pricing       *ModelPricing `json:"pricing,omitempty"`
	IsFree        bool          `json:"is_free"`
}

// NewModel converts a ModelInfo into the listing shape.
func NewModel(m ModelInfo) Model {
	return Model{
		ID:            m.ProviderID + "/" + m.ID,
		Created:       time.Now().Unix(),
		Object:        "model",
		OwnedBy:       m.ProviderID,
		Provider:      m.ProviderID,
		Name:          m.Name,
		ContextLength: m.ContextWindow,
		Capabilities:  m.Capabilities,
		Pricing:       m.Pricing,
		IsFree:        m.IsFree,
	}
}

// ModelFilter narrows GET /v1/models.
type ModelFilter struct {
	Provider   string
	ID         string
	Capability string
	FreeOnly   bool
}
