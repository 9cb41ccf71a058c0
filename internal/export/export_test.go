package export_test

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/elec-mate/coursepages/internal/audit"
	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/export"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
)

func TestWrite(t *testing.T) {
	reg := registry.New()
	pages := []content.Page{
		{
			Route:  "/am2/module2/section2",
			Kind:   content.KindSection,
			Module: "am2-module2",
			Title:  "RAMS",
			Checks: []quiz.Question{
				{ID: "c1", Prompt: "Check?", Options: []string{"Yes", "No"}, CorrectIndex: 0, Explanation: "Because"},
			},
			Quiz: &content.QuizBlock{Questions: []quiz.Question{
				{ID: "q1", Prompt: "Which?", Options: []string{"A", "B", "C"}, CorrectIndex: 2, Explanation: "C"},
			}},
		},
		{
			Route: "/am2/mock-exam",
			Kind:  content.KindExam,
			Title: "Mock exam",
			Exam: &content.ExamBlock{Bank: []quiz.Question{
				{ID: "e1", Prompt: "Exam?", Options: []string{"X", "Y"}, CorrectIndex: 1, Difficulty: quiz.Advanced},
			}},
		},
	}
	for _, p := range pages {
		if err := reg.Register(p); err != nil {
			t.Fatal(err)
		}
	}
	issues := []audit.Issue{{Severity: audit.SeverityWarning, Code: audit.CodeNavAsymmetric, Route: "/am2/mock-exam", Message: "one way"}}

	var buf bytes.Buffer
	if err := export.Write(&buf, reg, issues); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 3 || got[0] != export.SheetPages {
		t.Errorf("sheets = %v", got)
	}

	rows, err := f.GetRows(export.SheetPages)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("page rows = %d, want header + 2", len(rows))
	}
	if rows[1][0] != "/am2/mock-exam" || rows[1][7] != "1" {
		t.Errorf("first page row = %v", rows[1])
	}

	rows, err = f.GetRows(export.SheetQuestions)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"/am2/mock-exam", "exam", "e1", "advanced", "Exam?", "X | Y", "Y"},
		{"/am2/module2/section2", "check", "c1", "", "Check?", "Yes | No", "Yes", "Because"},
		{"/am2/module2/section2", "quiz", "q1", "", "Which?", "A | B | C", "C", "C"},
	}
	if len(rows) != len(want)+1 {
		t.Fatalf("question rows = %d, want %d", len(rows), len(want)+1)
	}
	for i, w := range want {
		got := rows[i+1]
		for j := range w {
			if j >= len(got) || got[j] != w[j] {
				t.Errorf("question row %d = %v, want %v", i+1, got, w)
				break
			}
		}
	}

	rows, err = f.GetRows(export.SheetIssues)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][1] != audit.CodeNavAsymmetric {
		t.Errorf("issue rows = %v", rows)
	}
}
