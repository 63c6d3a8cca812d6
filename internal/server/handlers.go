package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/intbuddy/internal/chat"
	"github.com/jonathan/intbuddy/internal/export"
	"github.com/jonathan/intbuddy/internal/session"
	"github.com/jonathan/intbuddy/internal/telemetry"
	"github.com/jonathan/intbuddy/internal/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

type loadRequest struct {
	Company string `json:"company" validate:"required"`
	Role    string `json:"role" validate:"required"`
	Pages   int    `json:"pages"`
}

type loadResponse struct {
	SessionID  string             `json:"session_id"`
	Company    string             `json:"company"`
	Role       string             `json:"role"`
	Pages      int                `json:"pages"`
	Status     types.ScrapeStatus `json:"status"`
	Records    int                `json:"records"`
	LinksFound int                `json:"links_found"`
	Failed     int                `json:"failed"`
	Chunks     int                `json:"chunks"`
	Ready      bool               `json:"ready"`
	Warning    string             `json:"warning,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer     string        `json:"answer"`
	Standalone string        `json:"standalone_question,omitempty"`
	Sources    []types.Chunk `json:"sources"`
	Ended      bool          `json:"ended,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.manager.Create()
	s.jsonResponse(w, http.StatusCreated, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(chi.URLParam(r, "id")); err != nil {
		s.errorFrom(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := s.decodeLoad(w, r)
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}

	telemetry.AddBreadcrumb(r.Context(), "load", q.Key())
	entry, err := s.manager.Load(r.Context(), id, q, nil)
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newLoadResponse(id, entry))
}

func (s *Server) handleLoadStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := s.decodeLoad(w, r)
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	if _, err := s.manager.Get(id); err != nil {
		s.errorFrom(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	telemetry.AddBreadcrumb(r.Context(), "load", q.Key())
	entry, err := s.manager.Load(r.Context(), id, q, sse.WriteProgress)
	if err != nil {
		if HTTPStatus(err) >= http.StatusInternalServerError {
			s.logger.Error("streamed load failed", zap.String("session", id), zap.Error(err))
			telemetry.CaptureError(r.Context(), err)
		}
		sse.WriteError(err.Error())
		return
	}
	sse.WriteComplete(newLoadResponse(id, entry))
}

// decodeLoad parses and validates a load body and clamps the page count.
func (s *Server) decodeLoad(w http.ResponseWriter, r *http.Request) (types.Query, error) {
	var req loadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return types.Query{}, &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	req.Company = strings.TrimSpace(req.Company)
	req.Role = strings.TrimSpace(req.Role)
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return types.Query{}, &ErrValidation{
				Field:   strings.ToLower(verrs[0].Field()),
				Message: fmt.Sprintf("failed %q constraint", verrs[0].Tag()),
			}
		}
		return types.Query{}, &ErrValidation{Field: "body", Message: err.Error()}
	}
	return types.Query{
		Company: req.Company,
		Role:    req.Role,
		Pages:   min(max(req.Pages, 1), s.maxPages),
	}, nil
}

func newLoadResponse(id string, entry *session.Entry) loadResponse {
	resp := loadResponse{
		SessionID: id,
		Company:   entry.Query.Company,
		Role:      entry.Query.Role,
		Pages:     entry.Query.Pages,
		Ready:     entry.Ready(),
	}
	if rs := entry.Result; rs != nil {
		resp.Status = rs.Status
		resp.Records = len(rs.Records)
		resp.LinksFound = rs.LinksFound
		resp.Failed = rs.Failed
	}
	if entry.Index != nil {
		resp.Chunks = entry.Index.Len()
	}
	resp.Warning = loadWarning(resp)
	return resp
}

func loadWarning(resp loadResponse) string {
	switch resp.Status {
	case types.StatusNoLinks:
		return "no interview links found for this company and role"
	case types.StatusNothingScraped:
		return fmt.Sprintf("found %d links but could not extract any interview", resp.LinksFound)
	case types.StatusPartial:
		if resp.Failed > 0 {
			return fmt.Sprintf("%d of %d interviews could not be extracted", resp.Failed, resp.LinksFound)
		}
		return "link collection stopped early, results may be incomplete"
	default:
		return ""
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorFrom(w, r, &ErrValidation{Field: "body", Message: "invalid JSON"})
		return
	}

	ans, err := s.manager.Ask(r.Context(), id, req.Question)
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		s.jsonResponse(w, http.StatusOK, askResponse{Answer: "Goodbye!", Ended: true, Sources: []types.Chunk{}})
		return
	case err != nil:
		s.errorFrom(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, toAskResponse(ans))
}

func toAskResponse(ans chat.Answer) askResponse {
	resp := askResponse{
		Answer:     ans.Text,
		Standalone: ans.Standalone,
		Sources:    make([]types.Chunk, 0, len(ans.Sources)),
	}
	for _, m := range ans.Sources {
		resp.Sources = append(resp.Sources, m.Chunk)
	}
	return resp
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.manager.History(chi.URLParam(r, "id"))
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	if turns == nil {
		turns = []types.Turn{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	entry, err := s.manager.Export(chi.URLParam(r, "id"))
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	var records []types.InterviewRecord
	if entry.Result != nil {
		records = entry.Result.Records
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(entry.Query, "csv")))
	if err := export.WriteCSV(w, records); err != nil {
		s.logger.Warn("failed to write CSV export", zap.Error(err))
	}
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, r *http.Request) {
	entry, err := s.manager.Export(chi.URLParam(r, "id"))
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	if entry.Data == nil {
		s.errorFrom(w, r, session.ErrNotLoaded)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(entry.Query, "md")))
	title := fmt.Sprintf("%s %s interview experiences", entry.Query.Company, entry.Query.Role)
	if err := export.WriteMarkdown(w, title, entry.Data); err != nil {
		s.logger.Warn("failed to write Markdown export", zap.Error(err))
	}
}

func (s *Server) handleStructured(w http.ResponseWriter, r *http.Request) {
	entry, err := s.manager.Export(chi.URLParam(r, "id"))
	if err != nil {
		s.errorFrom(w, r, err)
		return
	}
	if entry.Data == nil {
		s.errorFrom(w, r, session.ErrNotLoaded)
		return
	}
	s.jsonResponse(w, http.StatusOK, entry.Data)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// exportName builds a download file name such as google_sde-2.csv.
func exportName(q types.Query, ext string) string {
	company := slug(q.Company)
	if company == "" {
		company = "interviews"
	}
	if role := slug(q.Role); role != "" {
		return company + "_" + role + "." + ext
	}
	return company + "." + ext
}
