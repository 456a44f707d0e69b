package postgres

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func gooseLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	return entry
}

func TestGooseLogger_Fatalf_LogsAtErrorLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gl := gooseLogger{log: zerolog.New(&buf)}

	gl.Fatalf("migration %s failed: %s", "00001_init.sql", `relation "guilds" already exists`)

	entry := gooseLogEntry(t, &buf)
	if entry["level"] != "error" {
		t.Errorf("level = %q, want %q", entry["level"], "error")
	}
	want := `migration 00001_init.sql failed: relation "guilds" already exists`
	if msg, ok := entry["message"].(string); !ok || msg != want {
		t.Errorf("message = %q, want %q", entry["message"], want)
	}
}

func TestGooseLogger_Printf_LogsAtInfoLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gl := gooseLogger{log: zerolog.New(&buf)}

	gl.Printf("OK   %s (%s)", "00001_init.sql", "12.5ms")

	entry := gooseLogEntry(t, &buf)
	if entry["level"] != "info" {
		t.Errorf("level = %q, want %q", entry["level"], "info")
	}
	if msg, ok := entry["message"].(string); !ok || msg != "OK   00001_init.sql (12.5ms)" {
		t.Errorf("message = %q, want %q", entry["message"], "OK   00001_init.sql (12.5ms)")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	dup := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "users_username_key"}
	if !IsUniqueViolation(fmt.Errorf("insert user: %w", dup)) {
		t.Error("IsUniqueViolation(wrapped 23505) = false, want true")
	}
	if IsUniqueViolation(errors.New("connection reset")) {
		t.Error("IsUniqueViolation(plain error) = true, want false")
	}
	fk := &pgconn.PgError{Code: codeForeignKeyViolation}
	if IsUniqueViolation(fk) {
		t.Error("IsUniqueViolation(23503) = true, want false")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	t.Parallel()

	fk := &pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: "members_guild_id_fkey"}
	if !IsForeignKeyViolation(fmt.Errorf("insert member: %w", fk)) {
		t.Error("IsForeignKeyViolation(wrapped 23503) = false, want true")
	}
	if IsForeignKeyViolation(errors.New("connection reset")) {
		t.Error("IsForeignKeyViolation(plain error) = true, want false")
	}
}
