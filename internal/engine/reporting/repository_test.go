package reporting

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	query := `
	CREATE TABLE licenses (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		assigned_to TEXT,
		stripe_item_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		organization_id TEXT,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'field_staff',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func TestRepository_SeatCounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	seed := []struct {
		id, licType string
		assigned    bool
	}{
		{"l1", "owner", true},
		{"l2", "field_staff", true},
		{"l3", "field_staff", false},
		{"l4", "field_staff", false},
	}
	for _, s := range seed {
		var assignedTo interface{}
		if s.assigned {
			assignedTo = "profile_" + s.id
		}
		_, err := db.Exec(
			"INSERT INTO licenses (id, organization_id, type, status, assigned_to, created_at, updated_at) VALUES (?, 'org1', ?, 'active', ?, 1000, 1000)",
			s.id, s.licType, assignedTo,
		)
		if err != nil {
			t.Fatalf("Failed to seed license: %v", err)
		}
	}
	// Another org's seats never leak into the counts.
	if _, err := db.Exec("INSERT INTO licenses (id, organization_id, type, status, created_at, updated_at) VALUES ('lx', 'org2', 'owner', 'active', 1000, 1000)"); err != nil {
		t.Fatalf("Failed to seed license: %v", err)
	}

	counts, err := repo.SeatCounts("org1")
	if err != nil {
		t.Fatalf("Failed to get seat counts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("Expected 2 seat types, got %d", len(counts))
	}
	for _, c := range counts {
		switch c.Type {
		case "owner":
			if c.Total != 1 || c.Assigned != 1 {
				t.Errorf("owner counts wrong: %+v", c)
			}
		case "field_staff":
			if c.Total != 3 || c.Assigned != 1 {
				t.Errorf("field_staff counts wrong: %+v", c)
			}
		default:
			t.Errorf("Unexpected seat type %s", c.Type)
		}
	}
}

func TestRepository_ProfileCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	for _, id := range []string{"p1", "p2"} {
		if _, err := db.Exec("INSERT INTO profiles (id, organization_id, email, created_at, updated_at) VALUES (?, 'org1', ?, 1000, 1000)", id, id+"@x.com"); err != nil {
			t.Fatalf("Failed to seed profile: %v", err)
		}
	}

	n, err := repo.ProfileCount("org1")
	if err != nil {
		t.Fatalf("Failed to count profiles: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 profiles, got %d", n)
	}
}
