package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/requestdata"
	"github.com/inkwell-notes/inkwell-backend/internal/services"
)

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// asUser injects request data the way the auth middleware would.
func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type stubNoteService struct {
	note    *domain.Note
	list    []*domain.Note
	err     error
	deleted []uuid.UUID
}

func (s *stubNoteService) Create(ctx context.Context, ownerID uuid.UUID, title string, content json.RawMessage) (*domain.Note, error) {
	return s.note, s.err
}

func (s *stubNoteService) Get(ctx context.Context, ownerID, noteID uuid.UUID) (*domain.Note, error) {
	return s.note, s.err
}

func (s *stubNoteService) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Note, error) {
	return s.list, s.err
}

func (s *stubNoteService) Update(ctx context.Context, ownerID, noteID uuid.UUID, upd services.NoteUpdate) (*domain.Note, error) {
	return s.note, s.err
}

func (s *stubNoteService) Delete(ctx context.Context, ownerID, noteID uuid.UUID) error {
	s.deleted = append(s.deleted, noteID)
	return s.err
}

type stubIndexer struct {
	note   *domain.Note
	chunks int
	err    error
	title  string
}

func (s *stubIndexer) Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error) {
	return s.chunks, s.err
}

func (s *stubIndexer) UploadPDF(ctx context.Context, ownerID uuid.UUID, filename, title string, data []byte) (*domain.Note, int, error) {
	s.title = title
	return s.note, s.chunks, s.err
}

func (s *stubIndexer) DropIndex(ctx context.Context, noteID uuid.UUID) error {
	return s.err
}

// stubScheduler satisfies the reindex scheduler for handler tests; the
// synchronous path records what the handler passed through.
type stubScheduler struct {
	chunks       int
	err          error
	supplemental string
}

func (s *stubScheduler) Schedule(noteID, ownerID uuid.UUID, supplemental string) {}

func (s *stubScheduler) Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error) {
	s.supplemental = supplemental
	return s.chunks, s.err
}

func (s *stubScheduler) DropIndex(ctx context.Context, noteID uuid.UUID) error {
	return s.err
}

func (s *stubScheduler) Close() {}

type stubChat struct {
	result *services.ChatResult
	err    error
}

func (s *stubChat) Answer(ctx context.Context, ownerID uuid.UUID, query string) (*services.ChatResult, error) {
	return s.result, s.err
}

type stubGraph struct {
	graph *services.Graph
	err   error
	text  string
}

func (s *stubGraph) ExtractGraph(ctx context.Context, text string) (*services.Graph, error) {
	s.text = text
	return s.graph, s.err
}

func TestNoteHandlerUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNoteHandler(testLog(t), &stubNoteService{}, &stubScheduler{})
	r := gin.New()
	r.GET("/api/notes", h.ListNotes)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notes", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCreateNote(t *testing.T) {
	gin.SetMode(gin.TestMode)
	owner := uuid.New()
	created := &domain.Note{ID: uuid.New(), UserID: owner, Title: "My Note"}
	h := NewNoteHandler(testLog(t), &stubNoteService{note: created}, &stubScheduler{})

	r := gin.New()
	r.Use(asUser(owner))
	r.POST("/api/notes", h.CreateNote)

	body := strings.NewReader(`{"title":"My Note"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/notes", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got domain.Note
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "My Note" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestGetNoteInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNoteHandler(testLog(t), &stubNoteService{}, &stubScheduler{})
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.GET("/api/notes/:id", h.GetNote)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notes/not-a-uuid", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetNoteWrongOwner(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNoteHandler(testLog(t), &stubNoteService{
		err: apierr.Authorization(errors.New("not yours")),
	}, &stubScheduler{})
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.GET("/api/notes/:id", h.GetNote)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notes/"+uuid.NewString(), nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestIngestNoteReturnsChunkCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sched := &stubScheduler{chunks: 7}
	h := NewNoteHandler(testLog(t), &stubNoteService{}, sched)
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.POST("/api/notes/:id/ingest", h.IngestNote)

	req := httptest.NewRequest(http.MethodPost, "/api/notes/"+uuid.NewString()+"/ingest", strings.NewReader(`{"text":"extra"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["chunks"] != float64(7) {
		t.Fatalf("chunks = %v", got["chunks"])
	}
	if sched.supplemental != "extra" {
		t.Fatalf("supplemental = %q", sched.supplemental)
	}
}

func multipartPDF(t *testing.T, field, filename string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(bytes.Repeat([]byte("a"), size)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func uploadRouter(t *testing.T, idx *stubIndexer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.POST("/api/upload", NewUploadHandler(testLog(t), idx).UploadPDF)
	return r
}

func TestUploadPDF(t *testing.T) {
	idx := &stubIndexer{note: &domain.Note{ID: uuid.New(), Title: "doc", Type: domain.NoteTypePDF}, chunks: 3}
	r := uploadRouter(t, idx)

	body, contentType := multipartPDF(t, "file", "doc.pdf", 128)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestUploadPDFForwardsTitleField(t *testing.T) {
	idx := &stubIndexer{note: &domain.Note{ID: uuid.New(), Title: "Lab Notebook", Type: domain.NoteTypePDF}, chunks: 1}
	r := uploadRouter(t, idx)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", "Lab Notebook"); err != nil {
		t.Fatalf("write title field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", "scan-0042.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(bytes.Repeat([]byte("a"), 64)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if idx.title != "Lab Notebook" {
		t.Fatalf("title = %q", idx.title)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	r := uploadRouter(t, &stubIndexer{})

	body, contentType := multipartPDF(t, "file", "notes.txt", 128)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	r := uploadRouter(t, &stubIndexer{})

	body, contentType := multipartPDF(t, "file", "big.pdf", MaxUploadBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	r := uploadRouter(t, &stubIndexer{})

	body, contentType := multipartPDF(t, "document", "doc.pdf", 128)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestChatHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	chat := &stubChat{result: &services.ChatResult{Answer: "grounded answer", Sources: []services.Source{}}}
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.POST("/api/chat", NewChatHandler(testLog(t), chat).Chat)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"what is dopamine"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got services.ChatResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Answer != "grounded answer" {
		t.Fatalf("answer = %q", got.Answer)
	}
	if got.Sources == nil {
		t.Fatal("sources must serialize as an array")
	}
}

func TestChatHandlerQuotaError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	chat := &stubChat{err: apierr.Quota(errors.New("rate limited"), 0)}
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.POST("/api/chat", NewChatHandler(testLog(t), chat).Chat)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestVisualizeWithInlineText(t *testing.T) {
	gin.SetMode(gin.TestMode)
	graph := &stubGraph{graph: &services.Graph{
		Nodes: []services.GraphNode{{ID: "n1", Label: "Dopamine"}},
		Edges: []services.GraphEdge{},
	}}
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.POST("/api/visualize", NewVisualizeHandler(testLog(t), &stubNoteService{}, graph).Visualize)

	req := httptest.NewRequest(http.MethodPost, "/api/visualize", strings.NewReader(`{"text":"dopamine modulates reward"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if graph.text != "dopamine modulates reward" {
		t.Fatalf("graph got text %q", graph.text)
	}
}

func TestVisualizeRequiresInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(asUser(uuid.New()))
	r.POST("/api/visualize", NewVisualizeHandler(testLog(t), &stubNoteService{}, &stubGraph{}).Visualize)

	req := httptest.NewRequest(http.MethodPost, "/api/visualize", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
