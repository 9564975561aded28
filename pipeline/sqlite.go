package pipeline

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/bookcrawl/models"

	_ "modernc.org/sqlite"
)

// sqliteDSNOptions is applied by the driver on every new connection.
const sqliteDSNOptions = "?_pragma=synchronous(FULL)"

const scrapedAtColumn = "scraped_at"

var sqliteColumnTypes = map[string]string{
	models.FieldID:           "INTEGER",
	models.FieldURL:          "TEXT NOT NULL",
	models.FieldTitle:        "TEXT NOT NULL",
	models.FieldAuthor:       "TEXT NOT NULL",
	models.FieldRating:       "REAL",
	models.FieldGenres:       "TEXT NOT NULL",
	models.FieldPages:        "INTEGER",
	models.FieldRatingsCount: "INTEGER",
}

// SQLiteWriter stores the configured columns of each record, in order, in
// a books table. Each INSERT autocommits with synchronous=FULL, so a
// returned row survives a crash the same way a synced CSV line does.
type SQLiteWriter struct {
	db     *sql.DB
	insert *sql.Stmt
	fields []string
	mu     sync.Mutex
	closed bool
}

// NewSQLiteWriter opens filename and recreates the books table with one
// column per field plus scraped_at. nil fields selects models.DefaultFields.
func NewSQLiteWriter(filename string, fields []string) (*SQLiteWriter, error) {
	columns, err := resolveFields(fields)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename+sqliteDSNOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(booksSchema(columns)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create books table: %w", err)
	}
	insert, err := db.Prepare(insertBook(columns))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &SQLiteWriter{db: db, insert: insert, fields: columns}, nil
}

// Column names come from resolveFields, so they are always known identifiers.
func booksSchema(fields []string) string {
	var b strings.Builder
	b.WriteString("DROP TABLE IF EXISTS books;\nCREATE TABLE books (\n\tseq INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, name := range fields {
		fmt.Fprintf(&b, ",\n\t%s %s", name, sqliteColumnTypes[name])
	}
	fmt.Fprintf(&b, ",\n\t%s TEXT NOT NULL\n);", scrapedAtColumn)
	return b.String()
}

func insertBook(fields []string) string {
	columns := append(append([]string(nil), fields...), scrapedAtColumn)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO books (%s) VALUES (%s)", strings.Join(columns, ", "), placeholders)
}

// Write inserts one row.
func (sw *SQLiteWriter) Write(book *models.Book) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return ErrPipelineClosed
	}

	args := make([]any, 0, len(sw.fields)+1)
	for _, name := range sw.fields {
		args = append(args, sqliteValue(book, name))
	}
	args = append(args, book.ScrapedAt.UTC().Format(time.RFC3339Nano))

	if _, err := sw.insert.Exec(args...); err != nil {
		return fmt.Errorf("insert book row: %w", err)
	}
	return nil
}

// Close releases the statement and database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil
	}
	sw.closed = true

	sw.insert.Close()
	return sw.db.Close()
}

// Validate runs an integrity check. It must be called before Close.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return ErrPipelineClosed
	}
	var result string
	if err := sw.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("sqlite integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("sqlite integrity check: %s", result)
	}
	return nil
}

// ReadSQLite returns the stored records in insertion order. Columns that
// were not configured at write time stay at their zero value.
func ReadSQLite(filename string) ([]*models.Book, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT * FROM books ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var books []*models.Book
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}

		book := &models.Book{}
		for i, name := range columns {
			if err := setSQLiteColumn(book, name, values[i]); err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func sqliteValue(book *models.Book, name string) any {
	switch name {
	case models.FieldID:
		return sql.NullInt64{Int64: int64(book.ID), Valid: book.ID != 0}
	case models.FieldRating:
		if book.Rating == nil {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: *book.Rating, Valid: true}
	case models.FieldPages:
		return nullInt(book.Pages)
	case models.FieldRatingsCount:
		return nullInt(book.RatingsCount)
	default:
		return book.Field(name)
	}
}

func setSQLiteColumn(book *models.Book, name string, value any) error {
	switch name {
	case "seq":
		return nil
	case scrapedAtColumn:
		text, _ := value.(string)
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return err
		}
		book.ScrapedAt = t
		return nil
	}

	switch v := value.(type) {
	case nil:
		return nil
	case int64:
		return book.SetField(name, strconv.FormatInt(v, 10))
	case float64:
		return book.SetField(name, strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		return book.SetField(name, v)
	case []byte:
		return book.SetField(name, string(v))
	default:
		return fmt.Errorf("unexpected value type %T", value)
	}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
