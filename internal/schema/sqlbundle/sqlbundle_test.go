package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(SQLite())
	if len(stmts) != 4 {
		t.Fatalf("expected 4 sqlite statements, got %d", len(stmts))
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
}

func TestBundlesDeclareBothTables(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		for _, table := range []string{"applications", "application_status_history"} {
			if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				t.Fatalf("%s bundle missing table %s", name, table)
			}
		}
	}
	if !strings.Contains(Postgres(), "TIMESTAMPTZ") {
		t.Fatal("expected postgres DDL to use timestamptz columns")
	}
}

func TestSplitStatementsKeepsTrailingStatement(t *testing.T) {
	stmts := SplitStatements("-- header\nCREATE TABLE a (id TEXT);\n\nCREATE INDEX b ON a (id)")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(stmts), stmts)
	}
	if stmts[1] != "CREATE INDEX b ON a (id)" {
		t.Fatalf("unexpected tail statement %q", stmts[1])
	}
}
