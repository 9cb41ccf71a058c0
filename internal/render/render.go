// Package render turns a mounted page into HTML with the shared page template.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"

	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
	"github.com/elec-mate/coursepages/internal/seo"
	"github.com/elec-mate/coursepages/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes the page template.
type Renderer struct {
	tmpl     *template.Template
	siteName string
}

// New parses the embedded templates.
func New(siteName string) (*Renderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, siteName: siteName}, nil
}

// Options tunes a single render.
type Options struct {
	// Review filters the exam results list.
	Review quiz.ReviewFilter
	// Notice is shown above the page, e.g. when an expired mount was replaced.
	Notice string
}

// Page renders mt into w. The page's title and description are set on doc for
// the duration of the render and reset afterwards.
func (r *Renderer) Page(w io.Writer, doc seo.Document, mt *session.Mount, opts Options) error {
	doc.Set(mt.Page.Title, mt.Page.Description)
	defer doc.Reset()

	v := r.view(doc.Meta(), mt, opts)
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "page", v); err != nil {
		return fmt.Errorf("rendering %s: %w", mt.Page.Route, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// NotFound renders the not-found page.
func (r *Renderer) NotFound(w io.Writer, doc seo.Document, route string) error {
	doc.Set("Page not found", "")
	defer doc.Reset()
	return r.tmpl.ExecuteTemplate(w, "notfound", struct {
		Meta     seo.Meta
		SiteName string
		Route    string
	}{doc.Meta(), r.siteName, route})
}

type pageView struct {
	Meta         seo.Meta
	SiteName     string
	Page         *content.Page
	MountID      string
	Action       string
	Notice       string
	RefreshAfter int
	Breadcrumbs  []linkView
	TOC          []content.TOCEntry
	Sections     []sectionView
	FAQAccordion bool
	FAQAnchor    string
	Quiz         *quizView
	Exam         *examView
	Related      []linkView
	CTA          *ctaView
	Previous     *linkView
	Next         *linkView
}

type linkView struct {
	Label       string
	Href        string
	Description string
	External    bool
}

type ctaView struct {
	Heading string
	Body    string
	Link    linkView
}

type sectionView struct {
	ID      string
	Heading string
	Blocks  []blockView
}

type blockView struct {
	content.Block
	Check *questionView
}

type optionView struct {
	Index   int
	Text    string
	Chosen  bool
	Correct bool
}

type questionView struct {
	Action      string
	Widget      string
	ID          string
	Anchor      string
	Number      int
	Prompt      string
	Options     []optionView
	Status      string
	Answered    bool
	Graded      bool
	Explanation string
	Correct     string
	Flagged     bool
}

type quizView struct {
	Title     string
	Questions []questionView
	Score     quiz.Score
	Percent   int
	Empty     bool
}

type gridCell struct {
	Index    int
	Answered bool
	Flagged  bool
	Current  bool
}

type filterView struct {
	Name   string
	Href   string
	Active bool
}

type examView struct {
	Action    string
	Phase     string
	Count     int
	Minutes   int
	PassMark  int
	Remaining string
	Total     int
	Index     int
	Current   *questionView
	Grid      []gridCell
	Summary   quiz.Summary
	Result    quiz.Result
	Filters   []filterView
	Review    []questionView
	First     bool
	Last      bool
}

func (r *Renderer) view(meta seo.Meta, mt *session.Mount, opts Options) pageView {
	p := mt.Page
	v := pageView{
		Meta:         meta,
		SiteName:     r.siteName,
		Page:         p,
		MountID:      mt.ID,
		Action:       "/_mount/" + url.PathEscape(mt.ID),
		Notice:       opts.Notice,
		TOC:          p.TableOfContents(),
		FAQAccordion: p.FAQStyle != content.FAQFlat,
		FAQAnchor:    content.AnchorFAQ,
		Breadcrumbs:  links(p.Route, p.Breadcrumbs),
		Related:      links(p.Route, p.Related),
	}

	for _, s := range p.Sections {
		sv := sectionView{ID: s.ID, Heading: s.Heading}
		for _, b := range s.Blocks {
			bv := blockView{Block: b}
			if b.Type == content.BlockCheck {
				if c := mt.Check(b.Ref); c != nil {
					qv := checkView(v.Action, c)
					bv.Check = &qv
				}
			}
			sv.Blocks = append(sv.Blocks, bv)
		}
		v.Sections = append(v.Sections, sv)
	}

	if p.Quiz != nil {
		v.Quiz = quizPanel(v.Action, mt.Quiz)
	}
	if mt.Exam != nil {
		v.Exam = examPanel(v.Action, mt, opts.Review)
		if v.Exam.Phase == string(quiz.InProgress) {
			v.RefreshAfter = int(mt.Exam.Remaining(mt.Now).Seconds()) + 1
		}
	}
	if p.CTA != nil {
		v.CTA = &ctaView{
			Heading: p.CTA.Heading,
			Body:    p.CTA.Body,
			Link:    link(p.Route, content.Link{Label: p.CTA.Label, Href: p.CTA.Href}),
		}
	}
	if l := p.Navigation.Previous; l != nil {
		lv := link(p.Route, *l)
		v.Previous = &lv
	}
	if l := p.Navigation.Next; l != nil {
		lv := link(p.Route, *l)
		v.Next = &lv
	}
	return v
}

func link(from string, l content.Link) linkView {
	t := registry.Resolve(from, l.Href)
	return linkView{
		Label:       l.Label,
		Href:        registry.Href(from, l.Href),
		Description: l.Description,
		External:    t.External,
	}
}

func links(from string, ls []content.Link) []linkView {
	out := make([]linkView, 0, len(ls))
	for _, l := range ls {
		out = append(out, link(from, l))
	}
	return out
}

func options(q quiz.Question, chosen int, answered, reveal bool) []optionView {
	out := make([]optionView, len(q.Options))
	for i, text := range q.Options {
		out[i] = optionView{
			Index:   i,
			Text:    text,
			Chosen:  answered && i == chosen,
			Correct: reveal && i == q.CorrectIndex,
		}
	}
	return out
}

func checkView(action string, c *quiz.Check) questionView {
	q := c.Question()
	chosen, answered := c.Chosen()
	explanation, _ := c.Explanation()
	return questionView{
		Action:      action,
		Widget:      string(session.WidgetCheck),
		ID:          q.ID,
		Anchor:      "check-" + q.ID,
		Prompt:      q.Prompt,
		Options:     options(q, chosen, answered, answered),
		Status:      c.Status().String(),
		Answered:    answered,
		Graded:      true,
		Explanation: explanation,
		Correct:     q.CorrectOption(),
	}
}

func quizPanel(action string, e *quiz.Engine) *quizView {
	score := e.Score()
	v := &quizView{
		Title:   e.Title(),
		Score:   score,
		Percent: score.Percent(),
		Empty:   e.Empty(),
	}
	for i, q := range e.Questions() {
		chosen, answered := e.Chosen(q.ID)
		explanation, _ := e.Explanation(q.ID)
		if e.Repeated(i) {
			answered, explanation = false, ""
		}
		v.Questions = append(v.Questions, questionView{
			Action:      action,
			Widget:      string(session.WidgetQuiz),
			ID:          q.ID,
			Anchor:      fmt.Sprintf("quiz-%d", i+1),
			Number:      i + 1,
			Prompt:      q.Prompt,
			Options:     options(q, chosen, answered, answered),
			Status:      e.StatusAt(i).String(),
			Answered:    answered,
			Graded:      true,
			Explanation: explanation,
			Correct:     q.CorrectOption(),
		})
	}
	return v
}

func examPanel(action string, mt *session.Mount, filter quiz.ReviewFilter) *examView {
	x := mt.Exam
	s := x.Settings()
	v := &examView{
		Action:   action,
		Phase:    string(x.Phase(mt.Now)),
		Count:    s.QuestionCount,
		Minutes:  int(s.Duration.Minutes()),
		PassMark: s.PassMark,
	}
	e := x.Engine()
	qs := x.Questions()
	v.Total = len(qs)

	examQuestion := func(i int, graded bool) questionView {
		q := qs[i]
		chosen, answered := e.Chosen(q.ID)
		qv := questionView{
			Action:   action,
			Widget:   string(session.WidgetExam),
			ID:       q.ID,
			Anchor:   fmt.Sprintf("exam-%d", i+1),
			Number:   i + 1,
			Prompt:   q.Prompt,
			Options:  options(q, chosen, answered, graded),
			Answered: answered,
			Graded:   graded,
			Flagged:  x.Flagged(q.ID),
		}
		if graded {
			qv.Status = e.Status(q.ID).String()
			qv.Explanation = q.Explanation
			qv.Correct = q.CorrectOption()
		}
		return qv
	}

	switch quiz.Phase(v.Phase) {
	case quiz.InProgress:
		v.Remaining = quiz.FormatClock(x.Remaining(mt.Now))
		v.Index = x.Current()
		if v.Total > 0 {
			cur := examQuestion(v.Index, false)
			v.Current = &cur
		}
		v.First = v.Index == 0
		v.Last = v.Index == v.Total-1
		v.Summary = x.Summary()
		for i, q := range qs {
			_, answered := e.Chosen(q.ID)
			v.Grid = append(v.Grid, gridCell{
				Index:    i,
				Answered: answered,
				Flagged:  x.Flagged(q.ID),
				Current:  i == v.Index,
			})
		}
	case quiz.Submitted:
		v.Result = x.Result()
		v.Summary = x.Summary()
		if filter == "" {
			filter = quiz.ReviewAll
		}
		for _, f := range []quiz.ReviewFilter{quiz.ReviewAll, quiz.ReviewCorrect, quiz.ReviewIncorrect, quiz.ReviewUnanswered, quiz.ReviewFlagged} {
			q := url.Values{"mount": {mt.ID}, "review": {string(f)}}
			v.Filters = append(v.Filters, filterView{
				Name:   strings.ToUpper(string(f[:1])) + string(f[1:]),
				Href:   mt.Page.Route + "?" + q.Encode() + "#" + content.AnchorExam,
				Active: f == filter,
			})
		}
		for _, i := range x.Review(filter) {
			v.Review = append(v.Review, examQuestion(i, true))
		}
	}
	return v
}
