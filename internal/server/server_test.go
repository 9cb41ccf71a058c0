package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/events"
	"github.com/elec-mate/coursepages/internal/metrics"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
	"github.com/elec-mate/coursepages/internal/render"
	"github.com/elec-mate/coursepages/internal/seo"
	"github.com/elec-mate/coursepages/internal/server"
	"github.com/elec-mate/coursepages/internal/session"
)

const sectionRoute = "/am2/module2/section2"

func sectionPage() content.Page {
	return content.Page{
		Route:       sectionRoute,
		Kind:        content.KindSection,
		Title:       "RAMS - AM2 Module 2",
		Description: "Risk assessments and method statements",
		Hero:        content.Hero{Heading: "RAMS"},
		Sections: []content.Section{{
			ID:      "intro",
			Heading: "Intro",
			Blocks:  []content.Block{{Type: content.BlockCheck, Ref: "c1"}},
		}},
		Checks: []quiz.Question{
			{ID: "c1", Prompt: "Check?", Options: []string{"Yes", "No"}, CorrectIndex: 0, Explanation: "Because"},
		},
		Quiz: &content.QuizBlock{Title: "RAMS Quiz", Questions: []quiz.Question{
			{ID: "q1", Prompt: "First?", Options: []string{"A", "B"}, CorrectIndex: 1, Explanation: "B it is"},
			{ID: "q2", Prompt: "Second?", Options: []string{"A", "B"}, CorrectIndex: 0, Explanation: "A it is"},
		}},
		Digest: "abc123",
	}
}

func examPage() content.Page {
	var bank []quiz.Question
	for i := range 4 {
		bank = append(bank, quiz.Question{
			ID:           string(rune('a' + i)),
			Prompt:       "Exam question",
			Options:      []string{"Right", "Wrong"},
			CorrectIndex: 0,
			Difficulty:   quiz.Basic,
		})
	}
	return content.Page{
		Route: "/am2/mock-exam",
		Kind:  content.KindExam,
		Title: "AM2 Mock Exam",
		Exam: &content.ExamBlock{
			QuestionCount:   4,
			DurationMinutes: 10,
			Distribution:    &quiz.Distribution{Basic: 100},
			Bank:            bank,
		},
	}
}

type fixture struct {
	handler  http.Handler
	sessions *session.Manager
}

func newFixture(t *testing.T, checks map[string]server.HealthCheck) fixture {
	t.Helper()
	reg := registry.New()
	for _, p := range []content.Page{sectionPage(), examPage()} {
		if err := reg.Register(p); err != nil {
			t.Fatal(err)
		}
	}
	reg.RegisterModule(content.Module{ID: "am2", Title: "AM2", Mode: content.NavLinear, Pages: []string{sectionRoute}})

	m := metrics.New()
	eventLog := events.NewMemoryLogger()
	sessions := session.NewManager(session.NewMemoryStore(time.Hour), reg,
		session.WithMetrics(m),
		session.WithEvents(eventLog),
		session.WithRand(func() *rand.Rand { return rand.New(rand.NewPCG(3, 4)) }),
	)
	renderer, err := render.New("Elec-Mate")
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(server.Deps{
		Registry:       reg,
		Sessions:       sessions,
		Renderer:       renderer,
		Site:           seo.Site{Name: "Elec-Mate", BaseURL: "https://elec-mate.com"},
		Metrics:        m,
		AllowedOrigins: []string{"http://localhost:3000"},
		Checks:         checks,
		Stats:          eventLog,
	})
	return fixture{handler: srv.Handler(), sessions: sessions}
}

func (f fixture) do(t *testing.T, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

var mountAction = regexp.MustCompile(`action="/_mount/([^/"]+)/`)

func mountID(t *testing.T, html string) string {
	t.Helper()
	m := mountAction.FindStringSubmatch(html)
	if m == nil {
		t.Fatal("rendered page has no mount form")
	}
	return m[1]
}

func postForm(t *testing.T, f fixture, target string, form url.Values, referer string) *httptest.ResponseRecorder {
	t.Helper()
	h := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	if referer != "" {
		h.Set("Referer", referer)
	}
	return f.do(t, http.MethodPost, target, strings.NewReader(form.Encode()), h)
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]server.HealthCheck
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ok"`,
		},
		{
			name:       "readyz without dependencies",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ready"`,
		},
		{
			name: "readyz with healthy dependencies",
			checks: map[string]server.HealthCheck{
				"database": func(context.Context) error { return nil },
				"cache":    func(context.Context) error { return nil },
			},
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ready"`,
		},
		{
			name: "readyz reports the failing dependency",
			checks: map[string]server.HealthCheck{
				"database": func(context.Context) error { return nil },
				"cache":    func(context.Context) error { return errors.New("connection refused") },
			},
			path:       "/readyz",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `"cache":"connection refused"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFixture(t, tt.checks).do(t, http.MethodGet, tt.path, nil, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestPage_NotFound(t *testing.T) {
	rec := newFixture(t, nil).do(t, http.MethodGet, "/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<code>/nope</code>") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPage_FormAnswerRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, sectionRoute+"/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<title>RAMS - AM2 Module 2 | Elec-Mate</title>") {
		t.Error("page title not set from page data")
	}
	id := mountID(t, rec.Body.String())

	rec = postForm(t, f, "/_mount/"+id+"/answer", url.Values{
		"widget":   {"quiz"},
		"question": {"q1"},
		"option":   {"1"},
		"anchor":   {"quiz-1"},
	}, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if want := sectionRoute + "?mount=" + id + "#quiz-1"; loc != want {
		t.Fatalf("Location = %q, want %q", loc, want)
	}

	rec = f.do(t, http.MethodGet, strings.TrimSuffix(loc, "#quiz-1"), nil, nil)
	body := rec.Body.String()
	for _, want := range []string{"Score: 1/2 (50%)", "B it is"} {
		if !strings.Contains(body, want) {
			t.Errorf("page after answering missing %q", want)
		}
	}
	if got := mountID(t, body); got != id {
		t.Errorf("mount id = %q, want the same mount %q", got, id)
	}

	// A fresh GET is a fresh attempt.
	rec = f.do(t, http.MethodGet, sectionRoute, nil, nil)
	if strings.Contains(rec.Body.String(), "B it is") {
		t.Error("new mount shows answers from another mount")
	}
}

func TestPage_FormRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	mt, _ := f.sessions.Mount(t.Context(), sectionRoute)

	tests := []struct {
		name string
		form url.Values
	}{
		{"unknown widget", url.Values{"widget": {"poll"}, "question": {"q1"}, "option": {"0"}}},
		{"non-numeric option", url.Values{"widget": {"quiz"}, "question": {"q1"}, "option": {"x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postForm(t, f, "/_mount/"+mt.ID+"/answer", tt.form, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestPage_ExpiredMount(t *testing.T) {
	f := newFixture(t, nil)

	rec := postForm(t, f, "/_mount/gone/answer", url.Values{
		"widget": {"quiz"}, "question": {"q1"}, "option": {"0"},
	}, "http://example.com"+sectionRoute+"?mount=gone")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if loc != sectionRoute+"?mount=gone" {
		t.Fatalf("Location = %q", loc)
	}

	rec = f.do(t, http.MethodGet, loc, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Your previous attempt expired") {
		t.Error("expired mount notice not shown")
	}
	if mountID(t, body) == "gone" {
		t.Error("expired mount was reused")
	}
}

func TestPage_MountForOtherRouteIgnored(t *testing.T) {
	f := newFixture(t, nil)
	other, _ := f.sessions.Mount(t.Context(), "/am2/mock-exam")

	rec := f.do(t, http.MethodGet, sectionRoute+"?mount="+other.ID, nil, nil)
	if got := mountID(t, rec.Body.String()); got == other.ID {
		t.Error("page reused a mount belonging to another route")
	}
}

func TestPage_ExamForms(t *testing.T) {
	f := newFixture(t, nil)
	mt, _ := f.sessions.Mount(t.Context(), "/am2/mock-exam")
	base := "/_mount/" + mt.ID

	for _, step := range []struct {
		path string
		form url.Values
	}{
		{"/exam/start", nil},
		{"/flag", url.Values{"question": {"a"}}},
		{"/exam/goto", url.Values{"move": {"goto"}, "index": {"2"}}},
		{"/exam/submit", nil},
	} {
		rec := postForm(t, f, base+step.path, step.form, "")
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("POST %s status = %d, want 303", step.path, rec.Code)
		}
		if loc := rec.Header().Get("Location"); !strings.HasSuffix(loc, "#exam") {
			t.Errorf("POST %s Location = %q, want the exam anchor", step.path, loc)
		}
	}

	rec := f.do(t, http.MethodGet, "/am2/mock-exam?mount="+mt.ID, nil, nil)
	if !strings.Contains(rec.Body.String(), "0 of 4 correct") {
		t.Error("results not shown after submitting")
	}

	// Flagging after submission is ignored.
	rec = postForm(t, f, base+"/flag", url.Values{"question": {"a"}}, "")
	if rec.Code != http.StatusSeeOther {
		t.Errorf("late flag status = %d, want 303", rec.Code)
	}
}

func TestAPI_Pages(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/pages", nil, nil)
	var list struct {
		Pages []struct {
			Route string `json:"route"`
			Kind  string `json:"kind"`
		} `json:"pages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding pages: %v", err)
	}
	if len(list.Pages) != 2 || list.Pages[0].Route != "/am2/mock-exam" {
		t.Errorf("pages = %+v", list.Pages)
	}

	rec = f.do(t, http.MethodGet, "/api/pages"+sectionRoute, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if etag != `"abc123"` {
		t.Errorf("ETag = %q", etag)
	}
	var page content.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if page.Title != "RAMS - AM2 Module 2" {
		t.Errorf("title = %q", page.Title)
	}
	if page.Quiz == nil || len(page.Quiz.Questions) == 0 || len(page.Quiz.Questions[0].Options) == 0 {
		t.Errorf("quiz = %+v, want questions with options", page.Quiz)
	}
	for _, secret := range []string{"correct_index", "explanation"} {
		if strings.Contains(rec.Body.String(), secret) {
			t.Errorf("page data exposes %q", secret)
		}
	}

	rec = f.do(t, http.MethodGet, "/api/pages"+sectionRoute, nil, http.Header{"If-None-Match": {etag}})
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/pages/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing page status = %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/modules", nil, nil)
	if !strings.Contains(rec.Body.String(), `"id":"am2"`) {
		t.Errorf("modules = %s", rec.Body.String())
	}
}

func TestAPI_CORS(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodOptions, "/api/mounts", nil, http.Header{
		"Origin":                        {"http://localhost:3000"},
		"Access-Control-Request-Method": {"POST"},
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestAPI_MountLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	jsonHeader := http.Header{"Content-Type": {"application/json"}}

	rec := f.do(t, http.MethodPost, "/api/mounts", strings.NewReader(`{"route":"`+sectionRoute+`/"}`), jsonHeader)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var mv struct {
		ID    string `json:"id"`
		Route string `json:"route"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &mv); err != nil {
		t.Fatal(err)
	}
	if mv.Route != sectionRoute {
		t.Errorf("route = %q", mv.Route)
	}

	answer := func(body string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/api/mounts/"+mv.ID+"/answers", strings.NewReader(body), jsonHeader)
	}

	rec = answer(`{"widget":"check","question_id":"c1","option":1}`)
	var fb session.Feedback
	if err := json.Unmarshal(rec.Body.Bytes(), &fb); err != nil {
		t.Fatalf("decoding feedback: %v (%s)", err, rec.Body.String())
	}
	if !fb.Accepted || fb.Status != quiz.Incorrect || fb.Explanation != "Because" {
		t.Errorf("feedback = %+v", fb)
	}

	if rec = answer(`{"widget":"poll","question_id":"c1","option":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown widget status = %d, want 400", rec.Code)
	}
	if rec = answer(`not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/mounts/"+mv.ID+"/exam/start", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("start exam on a section page status = %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/mounts/"+mv.ID, nil, nil)
	if !strings.Contains(rec.Body.String(), `"c1":1`) {
		t.Errorf("mount = %s", rec.Body.String())
	}

	if rec = f.do(t, http.MethodDelete, "/api/mounts/"+mv.ID, nil, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec = answer(`{"widget":"check","question_id":"c1","option":0}`); rec.Code != http.StatusNotFound {
		t.Errorf("answer after unmount status = %d, want 404", rec.Code)
	}
	if rec = f.do(t, http.MethodDelete, "/api/mounts/"+mv.ID, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/mounts", strings.NewReader(`{"route":"/nope"}`), jsonHeader)
	if rec.Code != http.StatusNotFound {
		t.Errorf("mount unknown route status = %d, want 404", rec.Code)
	}
}

func TestAPI_Exam(t *testing.T) {
	f := newFixture(t, nil)
	mt, _ := f.sessions.Mount(t.Context(), "/am2/mock-exam")
	base := "/api/mounts/" + mt.ID

	if rec := f.do(t, http.MethodPost, base+"/exam/submit", nil, nil); rec.Code != http.StatusConflict {
		t.Errorf("submit before start status = %d, want 409", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, base+"/exam/start", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}

	for _, id := range []string{"a", "b", "c"} {
		rec := f.do(t, http.MethodPost, base+"/answers",
			strings.NewReader(`{"widget":"exam","question_id":"`+id+`","option":0}`), nil)
		var fb session.Feedback
		json.Unmarshal(rec.Body.Bytes(), &fb)
		if !fb.Accepted || fb.Graded {
			t.Errorf("exam feedback for %s = %+v, want accepted and ungraded", id, fb)
		}
	}

	rec := f.do(t, http.MethodPost, base+"/exam/submit", nil, nil)
	var res quiz.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Percent != 75 || res.Grade != quiz.Pass {
		t.Errorf("result = %+v, want 75%% pass", res)
	}

	rec = f.do(t, http.MethodPost, base+"/answers", strings.NewReader(`{"widget":"exam","question_id":"d","option":0}`), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("answer after submit status = %d, want 409", rec.Code)
	}
}

func TestAPI_PageStats(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, sectionRoute, nil, nil)
	f.do(t, http.MethodGet, sectionRoute, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/stats/pages"+sectionRoute, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Route  string         `json:"route"`
		Events map[string]int `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if got.Route != sectionRoute || got.Events[events.TypeMounted] != 2 {
		t.Errorf("stats = %+v, want 2 mounted events for %s", got, sectionRoute)
	}

	rec = f.do(t, http.MethodGet, "/api/stats/pages/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing page stats status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, sectionRoute, nil, nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil, nil)
	body := rec.Body.String()
	for _, want := range []string{
		`coursepages_page_views_total{kind="section"} 1`,
		`coursepages_mounts_created_total 1`,
		`http_requests_total{endpoint="/*",method="GET",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestSocket_Answers(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.handler)
	t.Cleanup(ts.Close)

	mt, _ := f.sessions.Mount(t.Context(), sectionRoute)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/mounts/" + mt.ID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	exchange := func(a session.Answer) map[string]json.RawMessage {
		t.Helper()
		if err := wsjson.Write(ctx, conn, a); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		var reply map[string]json.RawMessage
		if err := wsjson.Read(ctx, conn, &reply); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		return reply
	}

	reply := exchange(session.Answer{Widget: session.WidgetQuiz, QuestionID: "q1", Option: 1})
	var fb session.Feedback
	if err := json.Unmarshal(reply["feedback"], &fb); err != nil {
		t.Fatalf("decoding feedback: %v", err)
	}
	if !fb.Accepted || fb.Status != quiz.Correct || fb.Score == nil || fb.Score.Correct != 1 {
		t.Errorf("feedback = %+v", fb)
	}

	reply = exchange(session.Answer{Widget: "poll", QuestionID: "q1"})
	if _, ok := reply["error"]; !ok {
		t.Errorf("reply = %v, want an error for an unknown widget", reply)
	}

	conn.Close(websocket.StatusNormalClosure, "")

	open, err := f.sessions.Open(t.Context(), mt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if chosen, ok := open.Quiz.Chosen("q1"); !ok || chosen != 1 {
		t.Errorf("Chosen(q1) = %d, %v after socket answer", chosen, ok)
	}
}

func TestSocket_UnknownMount(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.handler)
	t.Cleanup(ts.Close)

	_, resp, err := websocket.Dial(t.Context(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/mounts/nope", nil)
	if err == nil {
		t.Fatal("Dial() succeeded for an unknown mount")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}
