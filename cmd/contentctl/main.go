// Command contentctl checks and exports authored course content.
//
//	contentctl validate [-content dir] [-warnings]
//	contentctl export   [-content dir] -o bank.xlsx
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/elec-mate/coursepages/internal/audit"
	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/export"
	"github.com/elec-mate/coursepages/internal/platform/config"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/registry"
	"github.com/elec-mate/coursepages/internal/session"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: contentctl validate [-content dir] [-warnings]")
	fmt.Fprintln(w, "       contentctl export [-content dir] -o bank.xlsx")
}

// run executes one subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	defaultPath := "./content"
	exam := session.DefaultExamSettings
	if cfg, err := config.Load(); err == nil {
		defaultPath = cfg.Content.Path
		exam = session.ExamSettingsFrom(cfg.Exam)
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(stderr)
		dir := fs.String("content", defaultPath, "content directory")
		showWarnings := fs.Bool("warnings", true, "print warnings as well as errors")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return validate(*dir, exam, *showWarnings, stdout, stderr)

	case "export":
		fs := flag.NewFlagSet("export", flag.ContinueOnError)
		fs.SetOutput(stderr)
		dir := fs.String("content", defaultPath, "content directory")
		out := fs.String("o", "", "output workbook (.xlsx)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *out == "" {
			fmt.Fprintln(stderr, "export: -o is required")
			return 2
		}
		return exportWorkbook(*dir, exam, *out, stdout, stderr)

	case "help", "-h", "--help":
		usage(stdout)
		return 0
	}

	fmt.Fprintf(stderr, "unknown command %q\n", args[0])
	usage(stderr)
	return 2
}

func load(dir string, exam quiz.ExamSettings) (*registry.Registry, []audit.Issue, error) {
	loader, err := content.NewLoader(dir)
	if err != nil {
		return nil, nil, err
	}
	reg, dups := registry.FromLoader(loader)
	issues := audit.Run(reg, audit.Options{
		Rejections:   loader.Rejections(),
		ExamDefaults: exam,
	})
	for _, err := range dups {
		issues = append(issues, audit.Issue{Severity: audit.SeverityError, Code: audit.CodeRouteDuplicate, Message: err.Error()})
	}
	return reg, issues, nil
}

func validate(dir string, exam quiz.ExamSettings, showWarnings bool, stdout, stderr io.Writer) int {
	reg, issues, err := load(dir, exam)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	for _, i := range issues {
		if i.Severity == audit.SeverityWarning && !showWarnings {
			continue
		}
		fmt.Fprintln(stdout, i)
	}
	errs, warnings := audit.Count(issues)
	fmt.Fprintf(stdout, "%d pages, %d modules: %d errors, %d warnings\n", reg.Len(), len(reg.Modules()), errs, warnings)
	if errs > 0 {
		return 1
	}
	return 0
}

func exportWorkbook(dir string, exam quiz.ExamSettings, out string, stdout, stderr io.Writer) int {
	reg, issues, err := load(dir, exam)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	f, err := os.Create(out)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := export.Write(f, reg, issues); err != nil {
		f.Close()
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s: %d pages, %d issues\n", out, reg.Len(), len(issues))
	return 0
}
