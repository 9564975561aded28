package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aluiziolira/bookcrawl/models"
)

// CSVWriter writes one flushed and synced row per record.
type CSVWriter struct {
	path   string
	fields []string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	closed bool
}

// NewCSVWriter truncates filename and writes the header row. A nil fields
// slice selects models.DefaultFields.
func NewCSVWriter(filename string, fields []string) (*CSVWriter, error) {
	fields, err := resolveFields(fields)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(fields); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		path:   filename,
		fields: fields,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends one row and syncs it to disk before returning.
func (cw *CSVWriter) Write(book *models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return ErrPipelineClosed
	}

	record := make([]string, len(cw.fields))
	for i, name := range cw.fields {
		record[i] = book.Field(name)
	}
	if err := cw.writer.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	if err := cw.file.Sync(); err != nil {
		return fmt.Errorf("sync csv file: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return nil
	}
	cw.closed = true

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate re-reads the file and checks the header row.
func (cw *CSVWriter) Validate() error {
	f, err := os.Open(cw.path)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	if !slices.Equal(header, cw.fields) {
		return fmt.Errorf("csv header %v does not match fields %v", header, cw.fields)
	}
	return nil
}

// ReadCSV decodes a file produced by CSVWriter.
func ReadCSV(path string) ([]*models.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if _, err := resolveFields(header); err != nil {
		return nil, err
	}

	var books []*models.Book
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}

		book := &models.Book{}
		for i, name := range header {
			if err := book.SetField(name, record[i]); err != nil {
				return nil, fmt.Errorf("csv row %d column %s: %w", row, name, err)
			}
		}
		books = append(books, book)
	}
	return books, nil
}

// JSONWriter writes newline-delimited JSON objects with keys in field order.
type JSONWriter struct {
	path   string
	fields []string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	closed bool
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string, fields []string) (*JSONWriter, error) {
	fields, err := resolveFields(fields)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	return &JSONWriter{
		path:   filename,
		fields: fields,
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Write appends one JSONL line and syncs it to disk.
func (jw *JSONWriter) Write(book *models.Book) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrPipelineClosed
	}

	line, err := encodeRow(book, jw.fields)
	if err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	if _, err := jw.writer.Write(line); err != nil {
		return fmt.Errorf("write json record: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	if err := jw.file.Sync(); err != nil {
		return fmt.Errorf("sync json file: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return nil
	}
	jw.closed = true

	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate checks that every line is a JSON object.
func (jw *JSONWriter) Validate() error {
	f, err := os.Open(jw.path)
	if err != nil {
		return fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if !json.Valid(scanner.Bytes()) {
			return fmt.Errorf("json line %d is not valid JSON", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan json file: %w", err)
	}
	return nil
}

// encodeRow renders the selected columns as one JSON object. Genres keep
// the joined CSV form; absent numbers become null.
func encodeRow(book *models.Book, fields []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := json.Marshal(columnValue(book, name))
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func columnValue(book *models.Book, name string) any {
	switch name {
	case models.FieldID:
		if book.ID == 0 {
			return nil
		}
		return int64(book.ID)
	case models.FieldRating:
		if book.Rating == nil {
			return nil
		}
		return *book.Rating
	case models.FieldPages:
		if book.Pages == nil {
			return nil
		}
		return *book.Pages
	case models.FieldRatingsCount:
		if book.RatingsCount == nil {
			return nil
		}
		return *book.RatingsCount
	}
	return book.Field(name)
}

func resolveFields(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return slices.Clone(models.DefaultFields), nil
	}
	seen := make(map[string]struct{}, len(fields))
	for _, name := range fields {
		if !models.KnownField(name) {
			return nil, fmt.Errorf("unknown output field %q", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate output field %q", name)
		}
		seen[name] = struct{}{}
	}
	return slices.Clone(fields), nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// SiblingPath swaps the extension of filename, used by the dual writer to
// place the JSONL copy next to the CSV.
func SiblingPath(filename, ext string) string {
	return filename[:len(filename)-len(filepath.Ext(filename))] + ext
}

// OutputPath swaps a leftover .csv extension for one matching format, so
// -format json or sqlite with the default path does not write into a
// file named books.csv.
func OutputPath(format, filename string) string {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return filename
	}
	switch format {
	case "json":
		return SiblingPath(filename, ".jsonl")
	case "sqlite":
		return SiblingPath(filename, ".db")
	}
	return filename
}
