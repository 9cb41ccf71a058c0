package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
	"github.com/elec-mate/coursepages/internal/render"
	"github.com/elec-mate/coursepages/internal/seo"
	"github.com/elec-mate/coursepages/internal/session"
)

const expiredNotice = "Your previous attempt expired, so this page has been reset."

// handlePage renders the page at the request path. A ?mount= naming a live
// mount of the same route keeps its answers; anything else starts afresh.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	route := registry.Clean(r.URL.Path)

	page, err := s.reg.Lookup(route)
	if err != nil {
		s.notFound(w, route)
		return
	}

	var (
		mt     *session.Mount
		notice string
	)
	if id := r.URL.Query().Get("mount"); id != "" {
		mt, err = s.sessions.Open(ctx, id)
		switch {
		case errors.Is(err, session.ErrMountNotFound):
			notice = expiredNotice
		case err != nil:
			slog.Error("opening mount", "mount", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		case mt.Page.Route != page.Route:
			mt = nil
		}
	}
	if mt == nil {
		mt, err = s.sessions.Mount(ctx, page.Route)
		if err != nil {
			slog.Error("mounting page", "route", page.Route, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
	if s.metrics != nil {
		s.metrics.PageViews.WithLabelValues(string(page.Kind)).Inc()
	}

	var buf bytes.Buffer
	opts := render.Options{
		Review: quiz.ParseReviewFilter(r.URL.Query().Get("review")),
		Notice: notice,
	}
	if err := s.renderer.Page(&buf, seo.NewHead(s.site, page.Route), mt, opts); err != nil {
		slog.Error("rendering page", "route", page.Route, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) notFound(w http.ResponseWriter, route string) {
	var buf bytes.Buffer
	if err := s.renderer.NotFound(&buf, seo.NewHead(s.site, route), route); err != nil {
		slog.Error("rendering not found page", "route", route, "error", err)
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleFormAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	widget, err := session.ParseWidget(r.PostFormValue("widget"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	option, err := strconv.Atoi(r.PostFormValue("option"))
	if err != nil {
		http.Error(w, "option must be a number", http.StatusBadRequest)
		return
	}

	_, err = s.sessions.Answer(r.Context(), id, session.Answer{
		Widget:     widget,
		QuestionID: r.PostFormValue("question"),
		Option:     option,
	})
	s.back(w, r, id, r.PostFormValue("anchor"), err)
}

func (s *Server) handleFormFlag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := s.sessions.ToggleFlag(r.Context(), id, r.PostFormValue("question"))
	s.back(w, r, id, content.AnchorExam, err)
}

func (s *Server) handleFormStartExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := s.sessions.StartExam(r.Context(), id)
	s.back(w, r, id, content.AnchorExam, err)
}

func (s *Server) handleFormSubmitExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := s.sessions.SubmitExam(r.Context(), id)
	s.back(w, r, id, content.AnchorExam, err)
}

func (s *Server) handleFormGoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, _ := strconv.Atoi(r.PostFormValue("index"))
	err := s.sessions.Navigate(r.Context(), id, session.Move(r.PostFormValue("move")), index)
	s.back(w, r, id, content.AnchorExam, err)
}

// back redirects a form post to the page it came from. Exam state errors just
// show the page again; an unknown mount sends the learner to a fresh mount of
// the page named by the Referer.
func (s *Server) back(w http.ResponseWriter, r *http.Request, id, anchor string, err error) {
	switch {
	case err == nil, errors.Is(err, quiz.ErrExamClosed), errors.Is(err, quiz.ErrExamNotStarted), errors.Is(err, session.ErrNoExam):
	case errors.Is(err, session.ErrMountNotFound):
		http.Redirect(w, r, pageURL(refererRoute(r), id, ""), http.StatusSeeOther)
		return
	default:
		slog.Error("applying form post", "mount", id, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	mt, err := s.sessions.Open(r.Context(), id)
	if err != nil {
		http.Redirect(w, r, pageURL(refererRoute(r), id, ""), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, pageURL(mt.Page.Route, id, anchor), http.StatusSeeOther)
}

func pageURL(route, mountID, anchor string) string {
	u := route + "?" + url.Values{"mount": {mountID}}.Encode()
	if validAnchor(anchor) {
		u += "#" + anchor
	}
	return u
}

func refererRoute(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return "/"
	}
	return registry.Clean(ref.Path)
}

func validAnchor(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
