package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// getTestDB returns a database pool for testing.
// Skips the test if DATABASE_URL is not set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

func uniqueTag() string {
	return fmt.Sprintf("itest%d", time.Now().UnixNano())
}

func TestPostgresStore(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := NewPostgresStore(db)
	tag := uniqueTag()
	exerciseRecordStore(t, s, tag)

	// Cleanup
	_, _ = db.Exec(context.Background(), "DELETE FROM medical_records WHERE patient_name ILIKE $1", "%"+tag+"%")
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "triage_test_" + uniqueTag()
	s, err := ConnectMongo(ctx, uri, dbName)
	if err != nil {
		t.Fatalf("ConnectMongo failed: %v", err)
	}
	defer func() {
		_ = s.coll.Database().Drop(context.Background())
		_ = s.Close(context.Background())
	}()

	exerciseRecordStore(t, s, uniqueTag())
}
