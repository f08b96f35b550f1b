package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/inkwell-notes/inkwell-backend/internal/http/response"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/services"
)

type ChatHandler struct {
	log  *logger.Logger
	chat services.ChatService
}

func NewChatHandler(log *logger.Logger, chat services.ChatService) *ChatHandler {
	return &ChatHandler{
		log:  log.With("handler", "ChatHandler"),
		chat: chat,
	}
}

type chatRequest struct {
	Query string `json:"query"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation(err))
		return
	}

	result, err := h.chat.Answer(c.Request.Context(), userID, req.Query)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, result)
}
