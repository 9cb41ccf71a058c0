package content

import (
	"time"

	"github.com/elec-mate/coursepages/internal/quiz"
)

// Kind distinguishes page layouts that share the template.
type Kind string

const (
	KindSection Kind = "section"
	KindHub     Kind = "hub"
	KindGuide   Kind = "guide"
	KindExam    Kind = "exam"
)

// FAQStyle selects how FAQs are rendered.
type FAQStyle string

const (
	FAQAccordion FAQStyle = "accordion"
	FAQFlat      FAQStyle = "flat"
)

// NavMode declares how pages in a module link to each other.
type NavMode string

const (
	// NavLinear pages form a chain: A.next = B implies B.previous = A.
	NavLinear NavMode = "linear"
	// NavHub pages each link back to the module hub; the hub lists them.
	NavHub NavMode = "hub"
)

// Page is one routed content page. It is loaded once and never mutated.
type Page struct {
	Route            string          `yaml:"route" json:"route"`
	Kind             Kind            `yaml:"kind" json:"kind"`
	Module           string          `yaml:"module,omitempty" json:"module,omitempty"`
	Title            string          `yaml:"title" json:"title"`
	Description      string          `yaml:"description" json:"description"`
	Breadcrumbs      []Link          `yaml:"breadcrumbs,omitempty" json:"breadcrumbs,omitempty"`
	Hero             Hero            `yaml:"hero" json:"hero"`
	Summary          []SummaryBox    `yaml:"summary,omitempty" json:"summary,omitempty"`
	LearningOutcomes []string        `yaml:"learning_outcomes,omitempty" json:"learning_outcomes,omitempty"`
	TOC              []TOCEntry      `yaml:"toc,omitempty" json:"toc,omitempty"`
	Sections         []Section       `yaml:"sections,omitempty" json:"sections,omitempty"`
	Checks           []quiz.Question `yaml:"checks,omitempty" json:"checks,omitempty"`
	FAQs             []FAQEntry      `yaml:"faqs,omitempty" json:"faqs,omitempty"`
	FAQStyle         FAQStyle        `yaml:"faq_style,omitempty" json:"faq_style,omitempty"`
	Quiz             *QuizBlock      `yaml:"quiz,omitempty" json:"quiz,omitempty"`
	Exam             *ExamBlock      `yaml:"exam,omitempty" json:"exam,omitempty"`
	Related          []Link          `yaml:"related,omitempty" json:"related,omitempty"`
	CTA              *CallToAction   `yaml:"cta,omitempty" json:"cta,omitempty"`
	Navigation       Navigation      `yaml:"navigation" json:"navigation"`

	// Source is the file the page was loaded from.
	Source string `yaml:"-" json:"-"`
	// Digest is a blake2b hash of the source bytes.
	Digest string `yaml:"-" json:"-"`
}

// Hero is the page header block.
type Hero struct {
	Eyebrow    string `yaml:"eyebrow,omitempty" json:"eyebrow,omitempty"`
	Heading    string `yaml:"heading" json:"heading"`
	Subheading string `yaml:"subheading,omitempty" json:"subheading,omitempty"`
}

// SummaryBox is a short highlighted takeaway near the top of a page.
type SummaryBox struct {
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body" json:"body"`
}

// TOCEntry is a table-of-contents anchor. ID must equal a section id.
type TOCEntry struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Section is an ordered body section of a page.
type Section struct {
	ID      string  `yaml:"id" json:"id"`
	Heading string  `yaml:"heading" json:"heading"`
	Blocks  []Block `yaml:"blocks" json:"blocks"`
}

// BlockType enumerates rich content blocks.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockCallout   BlockType = "callout"
	BlockCheck     BlockType = "check"
	BlockTable     BlockType = "table"
)

// Block is one piece of section body content. Which fields are used depends
// on Type; a check block names a quick-check question through Ref.
type Block struct {
	Type    BlockType  `yaml:"type" json:"type"`
	Text    string     `yaml:"text,omitempty" json:"text,omitempty"`
	Title   string     `yaml:"title,omitempty" json:"title,omitempty"`
	Tone    string     `yaml:"tone,omitempty" json:"tone,omitempty"`
	Items   []string   `yaml:"items,omitempty" json:"items,omitempty"`
	Ordered bool       `yaml:"ordered,omitempty" json:"ordered,omitempty"`
	Header  []string   `yaml:"header,omitempty" json:"header,omitempty"`
	Rows    [][]string `yaml:"rows,omitempty" json:"rows,omitempty"`
	Ref     string     `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// FAQEntry is an authored question and answer pair.
type FAQEntry struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// QuizBlock is the end-of-page assessment.
type QuizBlock struct {
	Title     string          `yaml:"title" json:"title"`
	Questions []quiz.Question `yaml:"questions" json:"questions"`
}

// ExamBlock configures a timed mock exam. Zero values take server defaults.
type ExamBlock struct {
	QuestionCount   int                `yaml:"question_count,omitempty" json:"question_count,omitempty"`
	DurationMinutes int                `yaml:"duration_minutes,omitempty" json:"duration_minutes,omitempty"`
	Distribution    *quiz.Distribution `yaml:"distribution,omitempty" json:"distribution,omitempty"`
	PassMark        int                `yaml:"pass_mark,omitempty" json:"pass_mark,omitempty"`
	MarginalMark    int                `yaml:"marginal_mark,omitempty" json:"marginal_mark,omitempty"`
	Bank            []quiz.Question    `yaml:"bank" json:"-"`
}

// Link is a labelled href. Hrefs may be absolute, relative to the page route,
// in-page anchors or external URLs.
type Link struct {
	Label       string `yaml:"label" json:"label"`
	Href        string `yaml:"href" json:"href"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// CallToAction is the closing promotional block.
type CallToAction struct {
	Heading string `yaml:"heading" json:"heading"`
	Body    string `yaml:"body,omitempty" json:"body,omitempty"`
	Label   string `yaml:"label" json:"label"`
	Href    string `yaml:"href" json:"href"`
}

// Navigation holds the previous/next controls. A nil side is omitted.
type Navigation struct {
	Previous *Link `yaml:"previous,omitempty" json:"previous,omitempty"`
	Next     *Link `yaml:"next,omitempty" json:"next,omitempty"`
}

// Module groups pages and declares their navigation mode.
type Module struct {
	ID    string   `yaml:"id" json:"id"`
	Title string   `yaml:"title" json:"title"`
	Mode  NavMode  `yaml:"mode" json:"mode"`
	Hub   string   `yaml:"hub,omitempty" json:"hub,omitempty"`
	Pages []string `yaml:"pages" json:"pages"`

	Source string `yaml:"-" json:"-"`
}

// Rejection records a file the loader skipped and why.
type Rejection struct {
	Path   string
	Reason string
}

// TableOfContents returns the authored ToC, or one derived from the sections
// when none was authored.
func (p *Page) TableOfContents() []TOCEntry {
	if len(p.TOC) > 0 {
		return p.TOC
	}
	out := make([]TOCEntry, 0, len(p.Sections))
	for _, s := range p.Sections {
		out = append(out, TOCEntry{ID: s.ID, Label: s.Heading})
	}
	return out
}

// Check returns the quick-check question with the given id.
func (p *Page) Check(id string) (quiz.Question, bool) {
	for _, q := range p.Checks {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.Question{}, false
}

// QuizQuestions returns the end-of-page quiz questions, if any.
func (p *Page) QuizQuestions() []quiz.Question {
	if p.Quiz == nil {
		return nil
	}
	return p.Quiz.Questions
}

// HasExam reports whether the page hosts a mock exam.
func (p *Page) HasExam() bool {
	return p.Exam != nil && len(p.Exam.Bank) > 0
}

// Settings merges the block's overrides onto defaults.
func (b *ExamBlock) Settings(defaults quiz.ExamSettings) quiz.ExamSettings {
	s := defaults
	if b == nil {
		return s
	}
	if b.QuestionCount > 0 {
		s.QuestionCount = b.QuestionCount
	}
	if b.DurationMinutes > 0 {
		s.Duration = time.Duration(b.DurationMinutes) * time.Minute
	}
	if b.Distribution != nil && b.Distribution.Total() > 0 {
		s.Distribution = *b.Distribution
	}
	if b.PassMark > 0 {
		s.PassMark = b.PassMark
	}
	if b.MarginalMark > 0 {
		s.MarginalMark = b.MarginalMark
	}
	return s
}

// Fixed anchors the template gives to blocks rendered outside the sections.
const (
	AnchorFAQ  = "faq"
	AnchorQuiz = "quiz"
	AnchorExam = "exam"
)

// Anchors returns every in-page id the template renders, in page order. A
// repeated value means two elements would share an id.
func (p *Page) Anchors() []string {
	out := make([]string, 0, len(p.Sections)+3)
	for _, s := range p.Sections {
		out = append(out, s.ID)
	}
	if len(p.FAQs) > 0 {
		out = append(out, AnchorFAQ)
	}
	if p.Quiz != nil && len(p.Quiz.Questions) > 0 {
		out = append(out, AnchorQuiz)
	}
	if p.HasExam() {
		out = append(out, AnchorExam)
	}
	return out
}
