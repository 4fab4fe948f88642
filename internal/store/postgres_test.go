package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	other := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}, ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503", ConstraintName: "likes_article_id_fkey"}, ErrNotFound},
		{"other pg error", &pgconn.PgError{Code: "42601"}, nil},
		{"other error", other, other},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err)
			if tc.want == nil {
				if errors.Is(got, ErrNotFound) || errors.Is(got, ErrConflict) {
					t.Fatalf("mapError(%v) = %v, want passthrough", tc.err, got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestMapErrorKeepsConstraintName(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "23505", ConstraintName: "users_nickname_key"})
	if !strings.Contains(err.Error(), "users_nickname_key") {
		t.Fatalf("constraint name missing: %v", err)
	}
}

func TestListFiltersMatchKeywordLiterally(t *testing.T) {
	for name, filter := range map[string]string{
		"products": productListFilter,
		"articles": articleListFilter,
	} {
		if strings.Contains(strings.ToUpper(filter), "LIKE") {
			t.Fatalf("%s filter must not treat the keyword as a LIKE pattern: %s", name, filter)
		}
		if !strings.Contains(filter, "strpos(") {
			t.Fatalf("%s filter should use strpos: %s", name, filter)
		}
	}
}
