// Package export writes the content catalogue and audit findings to an Excel
// workbook for content reviewers.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/elec-mate/coursepages/internal/audit"
	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
)

// Sheet names in the exported workbook.
const (
	SheetPages     = "Pages"
	SheetQuestions = "Questions"
	SheetIssues    = "Issues"
)

var (
	pageHeader     = []any{"Route", "Kind", "Module", "Title", "Sections", "Checks", "Quiz questions", "Exam bank"}
	questionHeader = []any{"Route", "Widget", "ID", "Difficulty", "Prompt", "Options", "Correct", "Explanation"}
	issueHeader    = []any{"Severity", "Code", "Route", "Message"}
)

// Write builds the workbook for reg and issues and writes it to w.
func Write(w io.Writer, reg *registry.Registry, issues []audit.Issue) error {
	f, err := Workbook(reg, issues)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Workbook builds a workbook with one sheet of pages, one of every question
// the pages carry and one of audit issues.
func Workbook(reg *registry.Registry, issues []audit.Issue) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetPages); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetQuestions, SheetIssues} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("adding sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	var pages, questions [][]any
	for _, p := range reg.Pages() {
		pages = append(pages, pageRow(p))
		questions = append(questions, questionRows(p)...)
	}
	var issueRows [][]any
	for _, i := range issues {
		issueRows = append(issueRows, []any{string(i.Severity), i.Code, i.Route, i.Message})
	}

	for _, s := range []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{SheetPages, pageHeader, pages},
		{SheetQuestions, questionHeader, questions},
		{SheetIssues, issueHeader, issueRows},
	} {
		if err := writeSheet(f, s.name, bold, s.header, s.rows); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func pageRow(p *content.Page) []any {
	var quizCount, bankCount int
	if p.Quiz != nil {
		quizCount = len(p.Quiz.Questions)
	}
	if p.Exam != nil {
		bankCount = len(p.Exam.Bank)
	}
	return []any{p.Route, string(p.Kind), p.Module, p.Title, len(p.Sections), len(p.Checks), quizCount, bankCount}
}

func questionRows(p *content.Page) [][]any {
	var rows [][]any
	add := func(widget string, qs []quiz.Question) {
		for _, q := range qs {
			rows = append(rows, []any{
				p.Route,
				widget,
				q.ID,
				string(q.Difficulty),
				q.Prompt,
				strings.Join(q.Options, " | "),
				q.CorrectOption(),
				q.Explanation,
			})
		}
	}
	add("check", p.Checks)
	if p.Quiz != nil {
		add("quiz", p.Quiz.Questions)
	}
	if p.Exam != nil {
		add("exam", p.Exam.Bank)
	}
	return rows
}
