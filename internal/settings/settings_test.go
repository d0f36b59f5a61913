package settings

import (
	"errors"
	"testing"

	"github.com/zulandar/stenograph/internal/db"
	"github.com/zulandar/stenograph/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory: %v", err)
	}
	if err := conn.AutoMigrate(&models.Setting{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return conn
}

func TestGet_StoredValueWins(t *testing.T) {
	conn := testDB(t)

	if err := Set(conn, 1, SessionRecalculationIntervalInSeconds, "120"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := Get(conn, 1, SessionRecalculationIntervalInSeconds)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "120" {
		t.Errorf("Get = %q, want 120", got)
	}
}

func TestGet_FallsBackToDefault(t *testing.T) {
	conn := testDB(t)

	got, err := Get(conn, 1, SessionRecalculationIntervalInSeconds)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "600" {
		t.Errorf("Get = %q, want default 600", got)
	}
}

func TestGet_TenantScoped(t *testing.T) {
	conn := testDB(t)

	if err := Set(conn, 1, SessionRecalculationIntervalInSeconds, "60"); err != nil {
		t.Fatal(err)
	}

	got, err := Get(conn, 2, SessionRecalculationIntervalInSeconds)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "600" {
		t.Errorf("tenant 2 Get = %q, want default 600 (tenant 1 value must not leak)", got)
	}
}

func TestGet_MissingWithNoDefault(t *testing.T) {
	conn := testDB(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := Get(conn, 1, AnthropicAPIKey)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestGet_EnvBackedDefault(t *testing.T) {
	conn := testDB(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	got, err := Get(conn, 1, AnthropicAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-test" {
		t.Errorf("Get = %q, want sk-test", got)
	}
}

func TestGetInt(t *testing.T) {
	conn := testDB(t)

	if got := GetInt(conn, 1, SessionRecalculationIntervalInSeconds, 30); got != 600 {
		t.Errorf("GetInt default = %d, want 600", got)
	}

	if err := Set(conn, 1, SessionRecalculationIntervalInSeconds, "banana"); err != nil {
		t.Fatal(err)
	}
	if got := GetInt(conn, 1, SessionRecalculationIntervalInSeconds, 30); got != 30 {
		t.Errorf("GetInt malformed = %d, want fallback 30", got)
	}
}

func TestSet_Overwrites(t *testing.T) {
	conn := testDB(t)

	if err := Set(conn, 1, AnthropicBaseURL, "https://gateway.one"); err != nil {
		t.Fatal(err)
	}
	if err := Set(conn, 1, AnthropicBaseURL, "https://gateway.two"); err != nil {
		t.Fatal(err)
	}

	got, err := Get(conn, 1, AnthropicBaseURL)
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://gateway.two" {
		t.Errorf("Get = %q, want https://gateway.two", got)
	}
}
