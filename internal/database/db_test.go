package database

import (
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	got := dsn("app", "pw", "db.local", "3306", "tg")

	for _, want := range []string{
		"app:pw@tcp(db.local:3306)/tg",
		"parseTime=true",
		"loc=UTC",
		"charset=utf8mb4",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn = %q, missing %q", got, want)
		}
	}
}

func TestDSNEmptyPassword(t *testing.T) {
	got := dsn("app", "", "localhost", "3306", "tg")
	if !strings.HasPrefix(got, "app@tcp(") {
		t.Errorf("dsn = %q, want credentials without a colon", got)
	}
}
