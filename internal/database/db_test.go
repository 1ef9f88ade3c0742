package database

import "testing"

func TestGetEnvFallsBackWhenUnset(t *testing.T) {
	t.Setenv("DB_TEST_KEY", "")
	if got := getEnv("DB_TEST_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestGetEnvPrefersSetValue(t *testing.T) {
	t.Setenv("DB_TEST_KEY", "custom")
	if got := getEnv("DB_TEST_KEY", "fallback"); got != "custom" {
		t.Fatalf("expected custom value, got %q", got)
	}
}

func TestHealthCheckReportsUninitializedDB(t *testing.T) {
	prior := DB
	DB = nil
	defer func() { DB = prior }()

	if err := HealthCheck(); err == nil {
		t.Fatal("expected an error when the database has not been initialized")
	}
}
