package quiz_test

import (
	"testing"

	"github.com/elec-mate/coursepages/internal/quiz"
)

func TestCheck_ImmediateFeedback(t *testing.T) {
	c := quiz.NewCheck(abcQuestion())

	if got := c.Status(); got != quiz.Unanswered {
		t.Fatalf("Status() = %v, want unanswered", got)
	}
	c.Select(0)
	if got := c.Status(); got != quiz.Incorrect {
		t.Errorf("Status() after wrong = %v, want incorrect", got)
	}
	if text, ok := c.Explanation(); !ok || text != "B is right" {
		t.Errorf("Explanation() = %q, %v", text, ok)
	}
	c.Select(1)
	if got := c.Status(); got != quiz.Correct {
		t.Errorf("Status() after overwrite = %v, want correct", got)
	}
}

func TestCheck_OutOfRangeIgnored(t *testing.T) {
	c := quiz.NewCheck(abcQuestion())
	if c.Select(3) {
		t.Error("Select(3) = true, want false")
	}
	if _, answered := c.Chosen(); answered {
		t.Error("Chosen() answered after rejected select")
	}
}

func TestCheck_InstancesIsolated(t *testing.T) {
	q := abcQuestion()
	a := quiz.NewCheck(q)
	b := quiz.NewCheck(q)

	a.Select(1)

	if got := b.Status(); got != quiz.Unanswered {
		t.Errorf("instance B Status() = %v, want unanswered", got)
	}
	if _, ok := b.Explanation(); ok {
		t.Error("instance B explanation revealed by A")
	}

	a.Reset()
	if got := a.Status(); got != quiz.Unanswered {
		t.Errorf("Status() after Reset = %v, want unanswered", got)
	}
}
