package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/aluiziolira/bookcrawl/models"
)

// ParseError reports text that could not be converted to its field type.
type ParseError struct {
	Field string
	Input string
	Err   error
}

func (e ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse %s from %q", e.Field, e.Input)
	}
	return fmt.Sprintf("parse %s from %q: %v", e.Field, e.Input, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

var (
	errNoDigits      = errors.New("no leading digits")
	errOutOfRange    = errors.New("out of range")
	errMissingMarker = errors.New("marker not found")
	errNotDecimal    = errors.New("not a decimal number")
)

// ValidateBook ensures the extractor captured the fields every live page has.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book %s missing title", b.ID)
	}
	if b.Rating == nil {
		return fmt.Errorf("book missing rating for %s", b.Title)
	}
	return nil
}

// ParseBookID extracts the identifier from a detail link such as
// "/book/show/2767052-the-hunger-games" or "/book/show/5907.The_Hobbit".
// The token after marker must start with digits that run to the end of
// the path or to one of . - / ? #.
func ParseBookID(href, marker string) (models.BookID, error) {
	idx := strings.Index(href, marker)
	if idx < 0 {
		return 0, ParseError{Field: "book id", Input: href, Err: errMissingMarker}
	}
	rest := href[idx+len(marker):]

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, ParseError{Field: "book id", Input: href, Err: errNoDigits}
	}
	if end < len(rest) && !strings.ContainsRune(".-/?#", rune(rest[end])) {
		return 0, ParseError{Field: "book id", Input: href, Err: fmt.Errorf("unexpected %q after id", rest[end])}
	}

	id, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil {
		return 0, ParseError{Field: "book id", Input: href, Err: err}
	}
	if id <= 0 {
		return 0, ParseError{Field: "book id", Input: href, Err: errOutOfRange}
	}
	return models.BookID(id), nil
}

// ratingPattern admits plain decimals only, so ParseFloat never sees
// NaN, Inf, exponents or hex floats.
var ratingPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseRating converts the average rating text, e.g. "4.34".
func ParseRating(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if !ratingPattern.MatchString(text) {
		return 0, ParseError{Field: "rating", Input: text, Err: errNotDecimal}
	}
	rating, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, ParseError{Field: "rating", Input: text, Err: err}
	}
	if rating < 0 || rating > 5 {
		return 0, ParseError{Field: "rating", Input: text, Err: errOutOfRange}
	}
	return rating, nil
}

// ParseRatingsCount reads the count preceding delimiter, e.g.
// "12,345 ratings" with delimiter "ratings" gives 12345.
func ParseRatingsCount(text, delimiter string) (int, error) {
	idx := strings.Index(text, delimiter)
	if delimiter == "" || idx < 0 {
		return 0, ParseError{Field: "ratings count", Input: text, Err: errMissingMarker}
	}
	count := stripThousands(strings.TrimSpace(text[:idx]))
	n, err := strconv.Atoi(count)
	if err != nil {
		return 0, ParseError{Field: "ratings count", Input: text, Err: err}
	}
	if n < 0 {
		return 0, ParseError{Field: "ratings count", Input: text, Err: errOutOfRange}
	}
	return n, nil
}

// FindPageCount returns the page count from the first block mentioning
// marker (case-insensitive). found is false when no block matches.
func FindPageCount(blocks []string, marker string) (pages int, found bool, err error) {
	marker = strings.ToLower(marker)
	for _, block := range blocks {
		text := strings.ToLower(strings.TrimSpace(block))
		if !strings.Contains(text, marker) {
			continue
		}
		pages, err = ParsePageCount(text)
		return pages, true, err
	}
	return 0, false, nil
}

// ParsePageCount reads the leading integer of a format line, e.g.
// "352 pages, Paperback".
func ParsePageCount(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, ParseError{Field: "pages", Input: text, Err: errNoDigits}
	}
	lead := strings.TrimRightFunc(stripThousands(fields[0]), func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	n, err := strconv.Atoi(lead)
	if err != nil {
		return 0, ParseError{Field: "pages", Input: text, Err: err}
	}
	if n < 0 {
		return 0, ParseError{Field: "pages", Input: text, Err: errOutOfRange}
	}
	return n, nil
}

// JoinNames joins contributor names in order, skipping blanks.
func JoinNames(names []string) string {
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			kept = append(kept, name)
		}
	}
	return strings.Join(kept, ", ")
}

// NormalizeText collapses runs of whitespace left by rendered markup.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func stripThousands(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ',' || r == ' ' || r == '\u00a0' || r == '\u202f' {
			return -1
		}
		return r
	}, s)
}
