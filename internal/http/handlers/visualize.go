package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/http/response"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/services"
)

type VisualizeHandler struct {
	log   *logger.Logger
	notes services.NoteService
	graph services.GraphService
}

func NewVisualizeHandler(log *logger.Logger, notes services.NoteService, graph services.GraphService) *VisualizeHandler {
	return &VisualizeHandler{
		log:   log.With("handler", "VisualizeHandler"),
		notes: notes,
		graph: graph,
	}
}

type visualizeRequest struct {
	NoteID uuid.UUID `json:"note_id"`
	Text   string    `json:"text"`
}

// Visualize builds a concept graph from either a note the caller owns or
// raw text sent inline.
func (h *VisualizeHandler) Visualize(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req visualizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation(err))
		return
	}

	text := strings.TrimSpace(req.Text)
	if req.NoteID != uuid.Nil {
		note, err := h.notes.Get(c.Request.Context(), userID, req.NoteID)
		if err != nil {
			response.RespondAPIError(c, err)
			return
		}
		parts := []string{note.Title, services.ExtractPlainTextJSON(note.Content)}
		text = services.NormalizeWhitespace(strings.Join(parts, "\n\n"))
	}
	if text == "" {
		response.RespondAPIError(c, apierr.Validation(errors.New("note_id or text required")))
		return
	}

	graph, err := h.graph.ExtractGraph(c.Request.Context(), text)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, graph)
}
