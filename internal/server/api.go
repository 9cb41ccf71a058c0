package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
	"github.com/elec-mate/coursepages/internal/session"
)

type pageSummary struct {
	Route  string       `json:"route"`
	Title  string       `json:"title"`
	Kind   content.Kind `json:"kind"`
	Module string       `json:"module,omitempty"`
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages := s.reg.Pages()
	out := make([]pageSummary, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageSummary{Route: p.Route, Title: p.Title, Kind: p.Kind, Module: p.Module})
	}
	respondJSON(w, http.StatusOK, map[string]any{"pages": out})
}

// questionView is a question without its answer key.
type questionView struct {
	ID         string          `json:"id"`
	Prompt     string          `json:"prompt"`
	Options    []string        `json:"options"`
	Difficulty quiz.Difficulty `json:"difficulty,omitempty"`
}

type quizView struct {
	Title     string         `json:"title"`
	Questions []questionView `json:"questions"`
}

// pageView is the public page data. Its checks and quiz shadow the embedded
// page's fields so correct answers and explanations stay server-side, like
// the exam bank.
type pageView struct {
	content.Page
	Checks []questionView `json:"checks,omitempty"`
	Quiz   *quizView      `json:"quiz,omitempty"`
}

func publicQuestions(qs []quiz.Question) []questionView {
	if len(qs) == 0 {
		return nil
	}
	out := make([]questionView, len(qs))
	for i, q := range qs {
		out[i] = questionView{ID: q.ID, Prompt: q.Prompt, Options: q.Options, Difficulty: q.Difficulty}
	}
	return out
}

func newPageView(p *content.Page) pageView {
	v := pageView{Page: *p, Checks: publicQuestions(p.Checks)}
	if p.Quiz != nil {
		v.Quiz = &quizView{Title: p.Quiz.Title, Questions: publicQuestions(p.Quiz.Questions)}
	}
	return v
}

// handleGetPage returns the authored page data. The ETag is the digest of the
// source file, so unchanged pages answer If-None-Match with 304.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	route := registry.Clean(chi.URLParam(r, "*"))
	page, err := s.reg.Lookup(route)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	if page.Digest != "" {
		etag := `"` + page.Digest + `"`
		w.Header().Set("ETag", etag)
		if etagMatch(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	respondJSON(w, http.StatusOK, newPageView(page))
}

func etagMatch(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

// handlePageStats reports learning-event counts for a registered page.
func (s *Server) handlePageStats(w http.ResponseWriter, r *http.Request) {
	route := registry.Clean(chi.URLParam(r, "*"))
	if !s.reg.Has(route) {
		respondError(w, http.StatusNotFound, registry.ErrPageNotFound.Error()+": "+route)
		return
	}
	counts, err := s.stats.CountByType(r.Context(), route)
	if err != nil {
		slog.Error("counting page events", "route", route, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"route": route, "events": counts})
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"modules": s.reg.Modules()})
}

type mountRequest struct {
	Route string `json:"route"`
}

type examView struct {
	Phase     quiz.Phase    `json:"phase"`
	Questions int           `json:"questions"`
	Remaining string        `json:"remaining,omitempty"`
	Summary   *quiz.Summary `json:"summary,omitempty"`
	Result    *quiz.Result  `json:"result,omitempty"`
}

type mountView struct {
	ID        string         `json:"id"`
	Route     string         `json:"route"`
	Quiz      *quiz.Score    `json:"quiz,omitempty"`
	Checks    map[string]int `json:"checks,omitempty"`
	Exam      *examView      `json:"exam,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func newMountView(mt *session.Mount) mountView {
	st := mt.State()
	v := mountView{
		ID:        mt.ID,
		Route:     mt.Page.Route,
		Checks:    st.Checks,
		UpdatedAt: st.UpdatedAt,
	}
	if mt.Page.Quiz != nil {
		score := mt.Quiz.Score()
		v.Quiz = &score
	}
	if x := mt.Exam; x != nil {
		ev := &examView{Phase: x.Phase(mt.Now), Questions: len(x.Questions())}
		switch ev.Phase {
		case quiz.InProgress:
			ev.Remaining = quiz.FormatClock(x.Remaining(mt.Now))
			sum := x.Summary()
			ev.Summary = &sum
		case quiz.Submitted:
			sum, res := x.Summary(), x.Result()
			ev.Summary, ev.Result = &sum, &res
		}
		v.Exam = ev
	}
	return v
}

func (s *Server) handleCreateMount(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mt, err := s.sessions.Mount(r.Context(), registry.Clean(req.Route))
	if err != nil {
		s.mountError(w, "", err)
		return
	}
	respondJSON(w, http.StatusCreated, newMountView(mt))
}

func (s *Server) handleGetMount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mt, err := s.sessions.Open(r.Context(), id)
	if err != nil {
		s.mountError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, newMountView(mt))
}

func (s *Server) handleDeleteMount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Unmount(r.Context(), id); err != nil {
		s.mountError(w, id, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleAPIAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var a session.Answer
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := session.ParseWidget(string(a.Widget)); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	fb, err := s.sessions.Answer(r.Context(), id, a)
	if err != nil {
		s.mountError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, fb)
}

func (s *Server) handleAPIStartExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mt, err := s.sessions.StartExam(r.Context(), id)
	if err != nil {
		s.mountError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, newMountView(mt))
}

func (s *Server) handleAPISubmitExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.sessions.SubmitExam(r.Context(), id)
	if err != nil {
		s.mountError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// mountError maps session errors onto API status codes.
func (s *Server) mountError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, session.ErrMountNotFound), errors.Is(err, registry.ErrPageNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, quiz.ErrExamClosed), errors.Is(err, quiz.ErrExamNotStarted), errors.Is(err, session.ErrNoExam):
		respondError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("mount request failed", "mount", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
