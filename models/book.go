// Package models defines data structures for the crawler.
package models

import (
	"strconv"
	"strings"
	"time"
)

// GenreSeparator joins genre tags into the single output column.
const GenreSeparator = ", "

// BookID identifies one listing entry. Valid IDs are positive.
type BookID int64

func (id BookID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Book is the record extracted from one detail page. A zero-field Book
// (see Empty) stands in for a page whose extraction failed.
type Book struct {
	ID           BookID    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Rating       *float64  `json:"rating"`
	Genres       []string  `json:"genres"`
	Pages        *int      `json:"pages"`
	RatingsCount *int      `json:"ratings_count"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// EmptyBook returns the placeholder record emitted for a failed page.
func EmptyBook(id BookID, url string) *Book {
	return &Book{ID: id, URL: url, ScrapedAt: time.Now()}
}

// Empty reports whether no extracted field is set.
func (b *Book) Empty() bool {
	return b.Title == "" && b.Author == "" && b.Rating == nil &&
		len(b.Genres) == 0 && b.Pages == nil && b.RatingsCount == nil
}

// Column names understood by Field and SetField.
const (
	FieldID           = "id"
	FieldURL          = "url"
	FieldTitle        = "title"
	FieldAuthor       = "author"
	FieldRating       = "rating"
	FieldGenres       = "genres"
	FieldPages        = "pages"
	FieldRatingsCount = "ratings_count"
)

// DefaultFields is the column order consumed by the reporting dashboard.
var DefaultFields = []string{
	FieldTitle, FieldAuthor, FieldRating, FieldGenres, FieldPages, FieldRatingsCount,
}

// KnownField reports whether name is a supported output column.
func KnownField(name string) bool {
	switch name {
	case FieldID, FieldURL, FieldTitle, FieldAuthor, FieldRating, FieldGenres, FieldPages, FieldRatingsCount:
		return true
	}
	return false
}

// Field renders one column as text. Absent values render as "".
func (b *Book) Field(name string) string {
	switch name {
	case FieldID:
		if b.ID == 0 {
			return ""
		}
		return b.ID.String()
	case FieldURL:
		return b.URL
	case FieldTitle:
		return b.Title
	case FieldAuthor:
		return b.Author
	case FieldRating:
		if b.Rating == nil {
			return ""
		}
		return strconv.FormatFloat(*b.Rating, 'f', -1, 64)
	case FieldGenres:
		return strings.Join(b.Genres, GenreSeparator)
	case FieldPages:
		return optionalInt(b.Pages)
	case FieldRatingsCount:
		return optionalInt(b.RatingsCount)
	}
	return ""
}

// SetField is the inverse of Field.
func (b *Book) SetField(name, value string) error {
	switch name {
	case FieldID:
		if value == "" {
			b.ID = 0
			return nil
		}
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		b.ID = BookID(id)
	case FieldURL:
		b.URL = value
	case FieldTitle:
		b.Title = value
	case FieldAuthor:
		b.Author = value
	case FieldRating:
		if value == "" {
			b.Rating = nil
			return nil
		}
		rating, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		b.Rating = &rating
	case FieldGenres:
		if value == "" {
			b.Genres = nil
			return nil
		}
		b.Genres = strings.Split(value, GenreSeparator)
	case FieldPages:
		return parseOptionalInt(value, &b.Pages)
	case FieldRatingsCount:
		return parseOptionalInt(value, &b.RatingsCount)
	}
	return nil
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseOptionalInt(value string, dst **int) error {
	if value == "" {
		*dst = nil
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = &n
	return nil
}

// RunResult summarises one crawl run.
type RunResult struct {
	RunID           string
	StartTime       time.Time
	EndTime         time.Time
	Discovered      int
	ListingPages    int
	RowsWritten     int
	EmptyRows       int
	NavigationFails int
	ErrorsByType    map[string]int
	Exhausted       bool
}
