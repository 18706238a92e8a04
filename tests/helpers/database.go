package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// GetTestDatabasePool creates a database connection pool for testing
func GetTestDatabasePool(ctx context.Context) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(buildDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// DatabaseConfigured reports whether the environment points at a test database
func DatabaseConfigured() bool {
	return os.Getenv("DATABASE_URL") != "" || os.Getenv("POSTGRES_HOST") != ""
}

// buildDatabaseURL prefers DATABASE_URL and falls back to POSTGRES_* parts
func buildDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "postgres")
	password := getenv("POSTGRES_PASSWORD", "postgres")
	dbname := getenv("POSTGRES_DB", "mission_dispatch_test")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		user, password, host, port, dbname)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestDatabase provides database utilities for testing
type TestDatabase struct {
	Pool *pgxpool.Pool
	ctx  context.Context
}

// NewTestDatabase connects to the schema applied by migrations/ and skips
// the test when no database is configured.
func NewTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	if !DatabaseConfigured() {
		t.Skip("DATABASE_URL or POSTGRES_HOST not set; skipping database test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := GetTestDatabasePool(ctx)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return &TestDatabase{
		Pool: pool,
		ctx:  context.Background(),
	}
}

// Close closes the database connection
func (db *TestDatabase) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// CleanupTables removes rows written by a test, children first
func (db *TestDatabase) CleanupTables(t *testing.T) {
	tables := []string{
		"push_subscriptions",
		"mission_audit_log",
		"mission_notifications",
		"missions",
		"users",
	}

	for _, table := range tables {
		_, err := db.Pool.Exec(db.ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to cleanup table %s: %v", table, err)
		}
	}
}

// CreateTestUser creates a user with the given role and returns its id
func (db *TestDatabase) CreateTestUser(t *testing.T, email, role string) string {
	t.Helper()
	var userID string
	err := db.Pool.QueryRow(db.ctx, `
		INSERT INTO users (name, email, role, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, "Test "+role, email, role, "hashed-password").Scan(&userID)

	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return userID
}

// GetMissionStatus reads a mission's status directly
func (db *TestDatabase) GetMissionStatus(t *testing.T, missionID string) string {
	t.Helper()
	var status string
	err := db.Pool.QueryRow(db.ctx, "SELECT status FROM missions WHERE id = $1", missionID).Scan(&status)
	if err != nil {
		t.Fatalf("Failed to get mission status: %v", err)
	}
	return status
}

// GetNotificationCount returns the number of offers recorded for a mission
func (db *TestDatabase) GetNotificationCount(t *testing.T, missionID string) int {
	t.Helper()
	var count int
	err := db.Pool.QueryRow(db.ctx,
		"SELECT COUNT(*) FROM mission_notifications WHERE mission_id = $1", missionID).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get notification count: %v", err)
	}
	return count
}

// HashPassword hashes a password using bcrypt for testing
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}
