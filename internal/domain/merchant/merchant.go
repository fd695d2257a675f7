// Package merchant provides the lookup-or-create merchant store. Raw partner
// strings from bank statements carry terminal ids and payment-network noise,
// so lookups normalize the name and fuzzy-match against the user's existing
// merchants before creating a new one.
package merchant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Merchant is a user-scoped counterparty entity.
type Merchant struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the merchant store on PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new merchant store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// LookupOrCreate resolves a raw partner string to a merchant id. An existing
// merchant whose name fuzzy-matches the normalized input is reused so
// "STARBUCKS 0031" and "STARBUCKS 0177" land on one entity.
func (s *PostgresStore) LookupOrCreate(ctx context.Context, userID uuid.UUID, rawName string) (uuid.UUID, error) {
	name := NormalizeName(rawName)
	if name == "" {
		return uuid.Nil, errors.New("merchant name is empty")
	}

	existing, err := s.listNames(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if id, ok := bestMatch(name, existing); ok {
		return id, nil
	}

	query := `
		INSERT INTO merchants (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET updated_at = now()
		RETURNING id`

	var id uuid.UUID
	if err := s.db.QueryRow(ctx, query, uuid.New(), userID, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to lookup or create merchant: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) listNames(ctx context.Context, userID uuid.UUID) (map[string]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM merchants WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}
	defer rows.Close()

	names := make(map[string]uuid.UUID)
	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan merchant: %w", err)
		}
		names[name] = id
	}
	return names, rows.Err()
}

// bestMatch returns the existing merchant the normalized name resolves to.
// Exact match wins; otherwise a containment or close fuzzy match does.
func bestMatch(name string, existing map[string]uuid.UUID) (uuid.UUID, bool) {
	if id, ok := existing[name]; ok {
		return id, true
	}

	upper := strings.ToUpper(name)
	for candidate, id := range existing {
		candidateUpper := strings.ToUpper(candidate)
		if strings.Contains(upper, candidateUpper) || strings.Contains(candidateUpper, upper) {
			return id, true
		}
		if fuzzy.MatchNormalizedFold(candidate, name) || levenshteinClose(candidateUpper, upper) {
			return id, true
		}
	}
	return uuid.Nil, false
}

// levenshteinClose accepts candidates within a distance of 2 for names of
// comparable length, enough for accents and single typos.
func levenshteinClose(a, b string) bool {
	if abs(len(a)-len(b)) > 2 {
		return false
	}
	return fuzzy.LevenshteinDistance(a, b) <= 2
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var (
	merchantPrefixes = []string{
		"COMPRA ", "PAGAMENTO ", "PAG ", "POS ", "PURCHASE ", "PAYMENT ",
		"TRF ", "TRANSF ", "KARTENZAHLUNG ", "LASTSCHRIFT ",
		"VISA ", "MASTERCARD ", "MAESTRO ",
	}
	refPattern   = regexp.MustCompile(`\s+\d{4,}$`)
	datePattern  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeName strips payment-network prefixes, trailing terminal/reference
// numbers and date fragments, then title-cases the remainder.
func NormalizeName(raw string) string {
	result := strings.TrimSpace(raw)

	upper := strings.ToUpper(result)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = refPattern.ReplaceAllString(result, "")
	result = datePattern.ReplaceAllString(result, "")
	result = spacePattern.ReplaceAllString(result, " ")
	return titleCase(strings.TrimSpace(result))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + strings.ToLower(word[1:])
		}
	}
	return strings.Join(words, " ")
}
