package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/http/response"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/requestdata"
	"github.com/inkwell-notes/inkwell-backend/internal/services"
)

type NoteHandler struct {
	log       *logger.Logger
	notes     services.NoteService
	reindexer services.ReindexScheduler
}

func NewNoteHandler(log *logger.Logger, notes services.NoteService, reindexer services.ReindexScheduler) *NoteHandler {
	return &NoteHandler{
		log:       log.With("handler", "NoteHandler"),
		notes:     notes,
		reindexer: reindexer,
	}
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func noteIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, apierr.Validation(errors.New("invalid note id")))
		return uuid.Nil, false
	}
	return id, true
}

type createNoteRequest struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
}

func (h *NoteHandler) CreateNote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation(err))
		return
	}

	note, err := h.notes.Create(c.Request.Context(), userID, req.Title, req.Content)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, note)
}

func (h *NoteHandler) ListNotes(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	out, err := h.notes.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notes": out})
}

func (h *NoteHandler) GetNote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.notes.Get(c.Request.Context(), userID, noteID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, note)
}

func (h *NoteHandler) UpdateNote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var req services.NoteUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation(err))
		return
	}

	note, err := h.notes.Update(c.Request.Context(), userID, noteID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, note)
}

func (h *NoteHandler) DeleteNote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	if err := h.notes.Delete(c.Request.Context(), userID, noteID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": noteID})
}

type ingestRequest struct {
	Text string `json:"text"`
}

// IngestNote rebuilds a note's index synchronously and reports the
// resulting chunk count. The run is serialized against background rebuilds
// of the same note.
func (h *NoteHandler) IngestNote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var req ingestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondAPIError(c, apierr.Validation(err))
			return
		}
	}

	count, err := h.reindexer.Reindex(c.Request.Context(), noteID, userID, req.Text)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"note_id": noteID, "chunks": count})
}
