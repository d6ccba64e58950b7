package faq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("faq entry not found")
	ErrEmptyQuestion = errors.New("question is required")
)

// Entry is one question and, once someone answered it, its answer
type Entry struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Author   string    `json:"author"`
	AskedAt  time.Time `json:"asked_at"`
	Answered bool      `json:"answered"`
}

const schema = `
	CREATE TABLE IF NOT EXISTS faq (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL,
		asked_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS faq_asked_at ON faq(asked_at);
`

// Store keeps the FAQ in a SQLite database
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database at path. ":memory:" gives a
// throwaway database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open faq database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping faq database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create faq schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "faq").Logger(),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Search returns entries whose question or answer contains term, ignoring
// case. An empty term returns everything. Newest first.
func (s *Store) Search(ctx context.Context, term string) ([]Entry, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, author, asked_at
		FROM faq
		WHERE question LIKE ? ESCAPE '\' OR answer LIKE ? ESCAPE '\'
		ORDER BY asked_at DESC, id ASC
	`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query faq: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Append records a new unanswered question
func (s *Store) Append(ctx context.Context, question, author string, askedAt time.Time) (Entry, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Entry{}, ErrEmptyQuestion
	}

	e := Entry{
		ID:       uuid.New().String(),
		Question: question,
		Author:   author,
		AskedAt:  askedAt.UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO faq (id, question, author, asked_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Question, e.Author, e.AskedAt.Format(time.RFC3339))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to append question: %w", err)
	}

	s.logger.Info().Str("id", e.ID).Str("author", author).Msg("question added")
	return e, nil
}

// Answer sets the answer of an existing entry
func (s *Store) Answer(ctx context.Context, id, answer string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE faq SET answer = ? WHERE id = ?`, strings.TrimSpace(answer), id)
	if err != nil {
		return fmt.Errorf("failed to answer question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to answer question: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var askedAt string
	if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Author, &askedAt); err != nil {
		return Entry{}, fmt.Errorf("failed to scan faq entry: %w", err)
	}
	t, err := time.Parse(time.RFC3339, askedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to parse asked_at %q: %w", askedAt, err)
	}
	e.AskedAt = t
	e.Answered = e.Answer != ""
	return e, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
