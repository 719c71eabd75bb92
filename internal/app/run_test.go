package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

// TestRun_MigrateCommand_UnreachableDatabase はmigrateコマンドがDB接続失敗をエラーとして返すことを検証する。
func TestRun_MigrateCommand_UnreachableDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err == nil {
		t.Fatal("Run(migrate) should fail when the database is unreachable")
	}
}

// TestRun_MigrateCommand_NoDatabaseURL はDATABASE_URL未設定のmigrateがエラーになることを検証する。
func TestRun_MigrateCommand_NoDatabaseURL(t *testing.T) {
	setTestEnv(t)
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil {
		t.Fatal("Run(migrate) should fail without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Errorf("error = %v, want DATABASE_URL is not set", err)
	}
}

// TestRun_HealthcheckCommand_NoServer はサーバー未起動時にhealthcheckが失敗することを検証する。
func TestRun_HealthcheckCommand_NoServer(t *testing.T) {
	t.Setenv("SERVER_PORT", "1")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck"}); err == nil {
		t.Fatal("Run(healthcheck) should fail when no server is listening")
	}
}

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", unreachableDatabaseURL)
	t.Setenv("JWT_SECRET", "test-cookie-secret-32bytes-long!!")
	t.Setenv("NODE_ENV", "development")
}
