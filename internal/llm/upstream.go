package llm

import (
	"encoding/json"
	"strings"

	"github.com/nulzo/model-curator/internal/httpclient"
)

// upstreamErrorBody mirrors the OpenAI error envelope, which OpenRouter and
// Ollama's compatibility layer share.
type upstreamErrorBody struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

func upstreamMessage(e *httpclient.UpstreamError) string {
	var body upstreamErrorBody
	if err := json.Unmarshal(e.Body, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if msg == "" {
		msg = e.Error()
	}
	return msg
}
