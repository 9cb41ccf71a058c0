// Package quiz implements the answer-tracking state behind quizzes, inline
// checks and timed mock exams. All types here are single-owner values: they
// hold no locks and are expected to be driven by one learner interaction at a
// time.
package quiz

import "fmt"

// Option count bounds for a well-formed question.
const (
	MinOptions = 2
	MaxOptions = 6
)

// Difficulty tags a question in a mock exam bank.
type Difficulty string

const (
	Basic        Difficulty = "basic"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Question is an authored multiple-choice question. Values are immutable once
// loaded.
type Question struct {
	ID           string     `yaml:"id" json:"id"`
	Prompt       string     `yaml:"prompt" json:"prompt"`
	Options      []string   `yaml:"options" json:"options"`
	CorrectIndex int        `yaml:"correct_index" json:"correct_index"`
	Explanation  string     `yaml:"explanation" json:"explanation"`
	Difficulty   Difficulty `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
}

// Status is the per-question answer state.
type Status int

const (
	Unanswered Status = iota
	Correct
	Incorrect
)

func (s Status) String() string {
	switch s {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unanswered"
	}
}

// MarshalText lets Status travel as a string in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the names written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "correct":
		*s = Correct
	case "incorrect":
		*s = Incorrect
	case "unanswered":
		*s = Unanswered
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// ValidOption reports whether i indexes one of q's options.
func (q Question) ValidOption(i int) bool {
	return i >= 0 && i < len(q.Options)
}

// Grade returns the status of choosing option i.
func (q Question) Grade(i int) Status {
	if i == q.CorrectIndex {
		return Correct
	}
	return Incorrect
}

// CorrectOption returns the text of the correct option, or "" when the
// correct index is out of range.
func (q Question) CorrectOption() string {
	if !q.ValidOption(q.CorrectIndex) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// Problems lists authoring defects in q. An empty result means q is well formed.
func (q Question) Problems() []string {
	var out []string
	if q.ID == "" {
		out = append(out, "missing id")
	}
	if q.Prompt == "" {
		out = append(out, "missing prompt")
	}
	if n := len(q.Options); n < MinOptions || n > MaxOptions {
		out = append(out, fmt.Sprintf("has %d options, want %d-%d", n, MinOptions, MaxOptions))
	}
	if !q.ValidOption(q.CorrectIndex) {
		out = append(out, fmt.Sprintf("correct_index %d out of range", q.CorrectIndex))
	}
	if q.Explanation == "" {
		out = append(out, "missing explanation")
	}
	switch q.Difficulty {
	case "", Basic, Intermediate, Advanced:
	default:
		out = append(out, fmt.Sprintf("unknown difficulty %q", q.Difficulty))
	}
	return out
}

// DuplicateIDs returns ids that occur more than once in qs, in first-seen order.
func DuplicateIDs(qs []Question) []string {
	seen := make(map[string]int, len(qs))
	var dups []string
	for _, q := range qs {
		seen[q.ID]++
		if seen[q.ID] == 2 {
			dups = append(dups, q.ID)
		}
	}
	return dups
}
