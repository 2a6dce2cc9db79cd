package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/repositories"
)

const contentColumns = "id, key, language, region, content_type, value, created_at, updated_at"

// ContentRepository stores content rows in the content_entries table.
type ContentRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewContentRepository wraps an open database handle.
func NewContentRepository(db *sql.DB) (*ContentRepository, error) {
	if db == nil {
		return nil, errors.New("content repository: database is required")
	}
	return &ContentRepository{db: db, now: time.Now}, nil
}

func (r *ContentRepository) List(ctx context.Context, query repositories.ContentQuery) ([]domain.ContentEntry, error) {
	var (
		where []string
		args  []any
	)
	if query.KeyPrefix != "" {
		args = append(args, escapeLike(query.KeyPrefix)+"%")
		where = append(where, "key LIKE $"+strconv.Itoa(len(args))+` ESCAPE '\'`)
	}
	if len(query.Languages) > 0 {
		args = append(args, pq.Array(query.Languages))
		where = append(where, "language = ANY($"+strconv.Itoa(len(args))+")")
	}

	stmt := "SELECT " + contentColumns + " FROM content_entries"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY key, created_at"
	return r.query(ctx, "postgres.content.list", stmt, args...)
}

func (r *ContentRepository) Search(ctx context.Context, search repositories.ContentSearch) ([]domain.ContentEntry, error) {
	var (
		where []string
		args  []any
	)
	if text := strings.TrimSpace(search.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(key ILIKE $"+n+` ESCAPE '\' OR value ILIKE $`+n+` ESCAPE '\')`)
	}
	if search.Language != "" {
		args = append(args, search.Language)
		where = append(where, "language = $"+strconv.Itoa(len(args)))
	}

	stmt := "SELECT " + contentColumns + " FROM content_entries"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY key, language, region NULLS FIRST"
	return r.query(ctx, "postgres.content.search", stmt, args...)
}

func (r *ContentRepository) FindExact(ctx context.Context, key, language string, region *string) (domain.ContentEntry, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+contentColumns+" FROM content_entries WHERE key = $1 AND language = $2 AND region IS NOT DISTINCT FROM $3",
		key, language, nullableString(region),
	)
	entry, err := scanContent(row)
	if err != nil {
		return domain.ContentEntry{}, classify("postgres.content.find", err)
	}
	return entry, nil
}

func (r *ContentRepository) Insert(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	now := r.now().UTC()
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO content_entries (id, key, language, region, content_type, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Key, entry.Language, nullableString(entry.Region),
		string(entry.ContentType), entry.Value, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return domain.ContentEntry{}, classify("postgres.content.insert", err)
	}
	return entry, nil
}

func (r *ContentRepository) Update(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = r.now().UTC()
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE content_entries SET value = $2, content_type = $3, updated_at = $4
		 WHERE id = $1 RETURNING `+contentColumns,
		entry.ID, entry.Value, string(entry.ContentType), entry.UpdatedAt,
	)
	saved, err := scanContent(row)
	if err != nil {
		return domain.ContentEntry{}, classify("postgres.content.update", err)
	}
	return saved, nil
}

func (r *ContentRepository) query(ctx context.Context, op, stmt string, args ...any) ([]domain.ContentEntry, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var entries []domain.ContentEntry
	for rows.Next() {
		entry, err := scanContent(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContent(row scanner) (domain.ContentEntry, error) {
	var (
		entry       domain.ContentEntry
		region      sql.NullString
		contentType string
	)
	if err := row.Scan(&entry.ID, &entry.Key, &entry.Language, &region, &contentType, &entry.Value, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return domain.ContentEntry{}, err
	}
	entry.Region = stringPointer(region)
	entry.ContentType = domain.ContentType(contentType)
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, nil
}

// escapeLike keeps the prefix a literal string match.
func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
