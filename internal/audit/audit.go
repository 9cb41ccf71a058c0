// Package audit checks loaded content for authoring defects: broken anchors,
// unresolved links, inconsistent navigation and malformed questions.
package audit

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
)

// Severity ranks an issue. Errors fail strict startup and `contentctl validate`.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeSchema            = "schema"
	CodeTOCOrphan         = "toc-orphan"
	CodeTOCDuplicate      = "toc-duplicate"
	CodeSectionDuplicate  = "section-duplicate"
	CodeSectionUnlisted   = "section-unlisted"
	CodeNavUnresolved     = "nav-unresolved"
	CodeNavAsymmetric     = "nav-asymmetric"
	CodeNavHub            = "nav-hub"
	CodeModuleUnknown     = "module-unknown"
	CodeQuestionInvalid   = "question-invalid"
	CodeQuestionDuplicate = "question-duplicate"
	CodeQuestionNoExplain = "question-explanation"
	CodeCheckUnresolved   = "check-unresolved"
	CodeCheckUnused       = "check-unused"
	CodeCheckRepeated     = "check-repeated"
	CodeLinkUnresolved    = "link-unresolved"
	CodeExamBank          = "exam-bank"
	CodeRouteDuplicate    = "route-duplicate"
)

// Issue is one defect found in the content.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Route    string   `json:"route"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s %s: %s", i.Severity, i.Code, i.Route, i.Message)
}

// Options tunes a run.
type Options struct {
	// Rejections are files the loader refused; each becomes a schema error.
	Rejections []content.Rejection
	// ExamDefaults are the settings an exam block without overrides uses.
	ExamDefaults quiz.ExamSettings
}

// Run audits every page and module in reg. Issues are ordered by route, then
// code.
func Run(reg *registry.Registry, opts Options) []Issue {
	a := &auditor{reg: reg, opts: opts}
	for _, r := range opts.Rejections {
		a.add(SeverityError, CodeSchema, r.Path, "%s", r.Reason)
	}
	for _, p := range reg.Pages() {
		a.anchors(p)
		a.links(p)
		a.questions(p)
		a.exam(p)
		a.navigation(p)
	}
	for _, m := range reg.Modules() {
		a.module(m)
	}
	sort.SliceStable(a.issues, func(i, j int) bool {
		if a.issues[i].Route != a.issues[j].Route {
			return a.issues[i].Route < a.issues[j].Route
		}
		return a.issues[i].Code < a.issues[j].Code
	})
	return a.issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}

// Count returns the number of errors and warnings.
func Count(issues []Issue) (errs, warnings int) {
	for _, i := range issues {
		if i.Severity == SeverityError {
			errs++
		} else {
			warnings++
		}
	}
	return errs, warnings
}

type auditor struct {
	reg    *registry.Registry
	opts   Options
	issues []Issue
}

func (a *auditor) add(sev Severity, code, route, format string, args ...any) {
	a.issues = append(a.issues, Issue{
		Severity: sev,
		Code:     code,
		Route:    route,
		Message:  fmt.Sprintf(format, args...),
	})
}

// anchors checks that each ToC entry targets exactly one rendered element.
func (a *auditor) anchors(p *content.Page) {
	rendered := map[string]int{}
	for _, id := range p.Anchors() {
		rendered[id]++
	}
	for id, n := range rendered {
		if id == "" {
			a.add(SeverityError, CodeSectionDuplicate, p.Route, "section without id")
			continue
		}
		if n > 1 {
			a.add(SeverityError, CodeSectionDuplicate, p.Route, "id %q rendered %d times", id, n)
		}
	}

	listed := map[string]bool{}
	for _, e := range p.TableOfContents() {
		if listed[e.ID] {
			a.add(SeverityError, CodeTOCDuplicate, p.Route, "toc lists %q more than once", e.ID)
			continue
		}
		listed[e.ID] = true
		if rendered[e.ID] == 0 {
			a.add(SeverityError, CodeTOCOrphan, p.Route, "toc entry %q (%s) has no matching section", e.ID, e.Label)
		}
	}
	if len(p.TOC) == 0 {
		return
	}
	for _, s := range p.Sections {
		if s.ID != "" && !listed[s.ID] {
			a.add(SeverityWarning, CodeSectionUnlisted, p.Route, "section %q is not in the toc", s.ID)
		}
	}
}

// links checks breadcrumbs, related links and the call to action.
func (a *auditor) links(p *content.Page) {
	check := func(where string, l content.Link) {
		if msg := a.unresolved(p.Route, l.Href); msg != "" {
			a.add(SeverityError, CodeLinkUnresolved, p.Route, "%s %q: %s", where, l.Label, msg)
		}
	}
	for _, l := range p.Breadcrumbs {
		check("breadcrumb", l)
	}
	for _, l := range p.Related {
		check("related link", l)
	}
	if p.CTA != nil {
		check("call to action", content.Link{Label: p.CTA.Label, Href: p.CTA.Href})
	}
}

// unresolved returns why href from route points nowhere, or "" when it resolves.
func (a *auditor) unresolved(route, href string) string {
	if strings.TrimSpace(href) == "" {
		return "empty href"
	}
	t := registry.Resolve(route, href)
	if t.External {
		return ""
	}
	target, err := a.reg.Lookup(t.Route)
	if err != nil {
		return fmt.Sprintf("no page at %s", t.Route)
	}
	if t.Fragment != "" && !slices.Contains(target.Anchors(), t.Fragment) {
		return fmt.Sprintf("%s has no anchor #%s", t.Route, t.Fragment)
	}
	return ""
}

func (a *auditor) questions(p *content.Page) {
	a.questionSet(p.Route, "check", p.Checks)
	a.questionSet(p.Route, "quiz", p.QuizQuestions())
	if p.Exam != nil {
		a.questionSet(p.Route, "exam bank", p.Exam.Bank)
	}

	referenced := map[string]bool{}
	for _, s := range p.Sections {
		for _, b := range s.Blocks {
			if b.Type != content.BlockCheck {
				continue
			}
			if referenced[b.Ref] {
				a.add(SeverityWarning, CodeCheckRepeated, p.Route, "check %q is placed more than once and its copies share one answer", b.Ref)
			}
			referenced[b.Ref] = true
			if _, ok := p.Check(b.Ref); !ok {
				a.add(SeverityError, CodeCheckUnresolved, p.Route, "section %q references unknown check %q", s.ID, b.Ref)
			}
		}
	}
	for _, q := range p.Checks {
		if !referenced[q.ID] {
			a.add(SeverityWarning, CodeCheckUnused, p.Route, "check %q is never placed in a section", q.ID)
		}
	}
}

func (a *auditor) questionSet(route, kind string, qs []quiz.Question) {
	for _, id := range quiz.DuplicateIDs(qs) {
		a.add(SeverityError, CodeQuestionDuplicate, route, "%s question id %q is used more than once", kind, id)
	}
	for i, q := range qs {
		for _, problem := range q.Problems() {
			code, sev := CodeQuestionInvalid, SeverityError
			if problem == "missing explanation" {
				code, sev = CodeQuestionNoExplain, SeverityWarning
			}
			a.add(sev, code, route, "%s question %d (%q) %s", kind, i+1, q.ID, problem)
		}
	}
}

func (a *auditor) exam(p *content.Page) {
	if p.Exam == nil {
		return
	}
	if d := p.Exam.Distribution; d != nil && (d.Basic < 0 || d.Intermediate < 0 || d.Advanced < 0 || d.Total() == 0) {
		a.add(SeverityError, CodeExamBank, p.Route, "distribution %+v is invalid", *d)
		return
	}
	s := p.Exam.Settings(a.opts.ExamDefaults)
	if len(p.Exam.Bank) < s.QuestionCount {
		a.add(SeverityWarning, CodeExamBank, p.Route, "bank has %d questions, exam draws %d", len(p.Exam.Bank), s.QuestionCount)
	}

	have := map[quiz.Difficulty]int{}
	for _, q := range p.Exam.Bank {
		d := q.Difficulty
		if d == "" {
			d = quiz.Basic
		}
		have[d]++
	}
	nb, ni, na := s.Distribution.Counts(s.QuestionCount)
	for _, want := range []struct {
		d quiz.Difficulty
		n int
	}{{quiz.Basic, nb}, {quiz.Intermediate, ni}, {quiz.Advanced, na}} {
		if have[want.d] < want.n {
			a.add(SeverityWarning, CodeExamBank, p.Route, "bank has %d %s questions, exam draws %d", have[want.d], want.d, want.n)
		}
	}
}

// navigation checks previous/next links resolve and, within a linear module,
// that they are symmetric.
func (a *auditor) navigation(p *content.Page) {
	nav := p.Navigation
	for _, side := range []struct {
		name string
		link *content.Link
	}{{"previous", nav.Previous}, {"next", nav.Next}} {
		if side.link == nil {
			continue
		}
		if msg := a.unresolved(p.Route, side.link.Href); msg != "" {
			a.add(SeverityError, CodeNavUnresolved, p.Route, "%s link %q: %s", side.name, side.link.Label, msg)
		}
	}

	if p.Module != "" {
		m, ok := a.reg.Module(p.Module)
		if !ok {
			a.add(SeverityWarning, CodeModuleUnknown, p.Route, "module %q is not defined", p.Module)
			return
		}
		if m.Mode == content.NavHub {
			a.hubSpoke(p, m)
			return
		}
	}

	if nav.Next != nil {
		if b := a.sameModule(p, nav.Next.Href); b != nil {
			if a.target(b, b.Navigation.Previous) != p.Route {
				a.add(SeverityWarning, CodeNavAsymmetric, p.Route, "next is %s but its previous is %s", b.Route, describe(a.target(b, b.Navigation.Previous)))
			}
		}
	}
	if nav.Previous != nil {
		if b := a.sameModule(p, nav.Previous.Href); b != nil {
			if a.target(b, b.Navigation.Next) != p.Route {
				a.add(SeverityWarning, CodeNavAsymmetric, p.Route, "previous is %s but its next is %s", b.Route, describe(a.target(b, b.Navigation.Next)))
			}
		}
	}
}

// hubSpoke checks that a page in a hub module links back to the hub.
func (a *auditor) hubSpoke(p *content.Page, m content.Module) {
	hub := registry.Clean(m.Hub)
	if m.Hub == "" || p.Route == hub {
		return
	}
	links := slices.Clone(p.Breadcrumbs)
	for _, l := range []*content.Link{p.Navigation.Previous, p.Navigation.Next} {
		if l != nil {
			links = append(links, *l)
		}
	}
	for _, l := range links {
		if t := registry.Resolve(p.Route, l.Href); !t.External && t.Route == hub {
			return
		}
	}
	a.add(SeverityWarning, CodeNavHub, p.Route, "page in hub module %q never links back to %s", m.ID, hub)
}

// sameModule returns the registered page href points to when it shares p's
// module. Links across module boundaries are not held to symmetry.
func (a *auditor) sameModule(p *content.Page, href string) *content.Page {
	t := registry.Resolve(p.Route, href)
	if t.External {
		return nil
	}
	b, err := a.reg.Lookup(t.Route)
	if err != nil || b.Module != p.Module {
		return nil
	}
	return b
}

func (a *auditor) target(p *content.Page, l *content.Link) string {
	if l == nil {
		return ""
	}
	t := registry.Resolve(p.Route, l.Href)
	if t.External {
		return ""
	}
	return t.Route
}

func describe(route string) string {
	if route == "" {
		return "missing"
	}
	return route
}

func (a *auditor) module(m content.Module) {
	if m.Hub != "" && !a.reg.Has(m.Hub) {
		a.add(SeverityError, CodeNavUnresolved, registry.Clean(m.Hub), "hub of module %q is not a page", m.ID)
	}
	for _, route := range m.Pages {
		p, err := a.reg.Lookup(route)
		if err != nil {
			a.add(SeverityError, CodeNavUnresolved, registry.Clean(route), "module %q lists a page that does not exist", m.ID)
			continue
		}
		if p.Module != m.ID {
			a.add(SeverityWarning, CodeModuleUnknown, p.Route, "listed in module %q but declares module %q", m.ID, p.Module)
		}
	}
}
