package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/internal/server/validator"
	"github.com/nulzo/model-curator/pkg/api"
)

type ChatHandler struct {
	manager *gateway.Manager
}

func NewChatHandler(manager *gateway.Manager) *ChatHandler {
	return &ChatHandler{manager: manager}
}

// CreateCompletion serves POST /v1/chat/completions.
func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	if req.Stream {
		h.handleStream(c, &req)
		return
	}

	resp, err := h.manager.Chat(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(problemFor(err))
		return
	}

	c.Header("X-Provider", resp.Provider)
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) handleStream(c *gin.Context, req *api.ChatRequest) {
	streamChan, err := h.manager.ChatStream(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(problemFor(err))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		result, ok := <-streamChan
		if !ok {
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return false
		}

		if result.Err != nil {
			errResp := api.ChatResponse{
				Object: "chat.completion.chunk",
				Choices: []api.Choice{{
					FinishReason: string(api.FinishError),
					Error:        &api.ErrorResponse{Message: result.Err.Error()},
				}},
			}
			data, _ := json.Marshal(errResp)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			return false
		}

		if result.Response != nil {
			data, err := json.Marshal(result.Response)
			if err != nil {
				return false
			}
			_, err = fmt.Fprintf(w, "data: %s\n\n", data)
			return err == nil
		}
		return true
	})
}
