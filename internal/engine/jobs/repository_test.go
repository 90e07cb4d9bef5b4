package jobs

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}

	query := `
	CREATE TABLE jobs (
		id TEXT PRIMARY KEY,
		job_number TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		status TEXT DEFAULT 'quoted',
		customer_name TEXT NOT NULL,
		site_address TEXT DEFAULT '',
		site_suburb TEXT DEFAULT '',
		site_state TEXT DEFAULT '',
		site_postcode TEXT DEFAULT '',
		assigned_to TEXT,
		scheduled_at INTEGER,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err = db.Exec(query)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	return db
}

func TestRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	now := time.Now().Unix()
	job := &Job{
		ID:           "job1",
		JobNumber:    "JOB-0001",
		Title:        "Switchboard upgrade",
		Status:       StatusQuoted,
		CustomerName: "R. Taylor",
		SiteSuburb:   "Geelong",
		SiteState:    "VIC",
		CreatedBy:    "user1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.Create(job); err != nil {
		t.Errorf("Failed to create job: %v", err)
	}

	fetched, err := repo.GetByID("job1")
	if err != nil {
		t.Errorf("Failed to get job: %v", err)
	}
	if fetched.JobNumber != "JOB-0001" {
		t.Errorf("Expected job number JOB-0001, got %s", fetched.JobNumber)
	}
	if fetched.AssignedTo != "" {
		t.Errorf("Expected unassigned job, got %s", fetched.AssignedTo)
	}
}

func TestRepository_GetMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job, err := repo.GetByID("nope")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if job != nil {
		t.Errorf("Expected nil for missing job, got %+v", job)
	}
}

func TestRepository_ListByAssignee(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Now().Unix()
	for i, assignee := range []string{"tech1", "tech1", "tech2"} {
		job := &Job{
			ID:           "job" + string(rune('a'+i)),
			JobNumber:    "JOB-000" + string(rune('1'+i)),
			Title:        "Job",
			Status:       StatusScheduled,
			CustomerName: "Customer",
			AssignedTo:   assignee,
			CreatedBy:    "user1",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := repo.Create(job); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
	}

	jobs, err := repo.ListByAssignee("tech1", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs for tech1, got %d", len(jobs))
	}
}

func TestRepository_DeleteCancels(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Now().Unix()
	job := &Job{
		ID:           "job1",
		JobNumber:    "JOB-0001",
		Title:        "Job",
		Status:       StatusQuoted,
		CustomerName: "Customer",
		CreatedBy:    "user1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	if err := repo.Delete("job1"); err != nil {
		t.Fatalf("Failed to delete job: %v", err)
	}
	fetched, err := repo.GetByID("job1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if fetched.Status != StatusCancelled {
		t.Errorf("Expected cancelled status, got %s", fetched.Status)
	}
}
