package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateDir_RepoMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("repo migrations failed validation: %v", err)
	}
}

func TestValidateDir_RejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_bad_version.sql", "-- +goose Up\n-- +goose Down\n")

	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestValidateDir_RejectsMissingDownSection(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20250114093000_create_payables.sql", "-- +goose Up\nCREATE TABLE t (id INT);\n")

	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected missing down section to fail validation")
	}
}

func TestValidateDir_RejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose Down\n"
	writeMigration(t, dir, "20250114093000_one.sql", body)
	writeMigration(t, dir, "20250114093000_two.sql", body)

	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected duplicate versions to fail validation")
	}
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}
}
