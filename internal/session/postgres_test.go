package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/elec-mate/coursepages/internal/platform/database"
	"github.com/elec-mate/coursepages/internal/quiz"
	"github.com/elec-mate/coursepages/internal/session"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := t.Context()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("courses"),
		postgres.WithUsername("courses"),
		postgres.WithPassword("courses"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, url, 2, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	s := session.NewPostgresStore(db.Pool, time.Minute)
	st := session.MountState{
		ID:     "m1",
		Route:  "/mock-exam",
		Quiz:   map[string]int{"1": 3},
		Checks: map[string]int{"c1": 0},
		Exam: &quiz.ExamState{
			QuestionIDs: []string{"q1", "q2"},
			Answers:     map[string]int{"q1": 2},
			Flagged:     []string{"q2"},
			Current:     1,
		},
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Saving again updates the row in place.
	st.Checks["c2"] = 1
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Exam == nil || got.Exam.Answers["q1"] != 2 || got.Checks["c2"] != 1 || got.Quiz["1"] != 3 {
		t.Errorf("Get() = %+v", got)
	}

	if err := s.Delete(ctx, "m1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "m1"); !errors.Is(err, session.ErrMountNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrMountNotFound", err)
	}
	if err := s.Delete(ctx, "m1"); !errors.Is(err, session.ErrMountNotFound) {
		t.Errorf("second Delete() error = %v, want ErrMountNotFound", err)
	}

	expired := session.NewPostgresStore(db.Pool, -time.Second)
	if err := expired.Save(ctx, session.MountState{ID: "old", Route: "/guides/rcd"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := expired.Get(ctx, "old"); !errors.Is(err, session.ErrMountNotFound) {
		t.Errorf("Get() on expired row error = %v, want ErrMountNotFound", err)
	}
	n, err := expired.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
}
