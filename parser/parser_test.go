package parser

import (
	"errors"
	"testing"

	"github.com/aluiziolira/bookcrawl/models"
)

func TestValidateBook(t *testing.T) {
	rating := 4.2
	tests := []struct {
		name    string
		book    *models.Book
		wantErr bool
	}{
		{
			name:    "valid book",
			book:    &models.Book{ID: 1, Title: "Dune", Rating: &rating},
			wantErr: false,
		},
		{
			name:    "nil book",
			book:    nil,
			wantErr: true,
		},
		{
			name:    "missing title",
			book:    &models.Book{ID: 1, Rating: &rating},
			wantErr: true,
		},
		{
			name:    "missing rating",
			book:    &models.Book{ID: 1, Title: "Dune"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBook(tt.book)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseBookID(t *testing.T) {
	const marker = "/book/show/"
	tests := []struct {
		name    string
		href    string
		want    models.BookID
		wantErr bool
	}{
		{name: "dot delimiter", href: "https://www.goodreads.com/book/show/5907.The_Hobbit", want: 5907},
		{name: "dash delimiter", href: "/book/show/2767052-the-hunger-games", want: 2767052},
		{name: "bare id", href: "/book/show/42", want: 42},
		{name: "query delimiter", href: "/book/show/77?from_search=true", want: 77},
		{name: "missing marker", href: "/author/show/1077326.J_K_Rowling", wantErr: true},
		{name: "non numeric", href: "/book/show/abc.Title", wantErr: true},
		{name: "digits followed by letters", href: "/book/show/12abc", wantErr: true},
		{name: "zero", href: "/book/show/0.Zero", wantErr: true},
		{name: "empty", href: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBookID(tt.href, marker)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBookID(%q) error = %v, wantErr %v", tt.href, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBookID(%q) = %d, want %d", tt.href, got, tt.want)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "plain", input: "4.34", want: 4.34},
		{name: "whitespace", input: "  3.9\n", want: 3.9},
		{name: "upper bound", input: "5", want: 5},
		{name: "above range", input: "5.1", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "not a number", input: "four", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "nan", input: "NaN", wantErr: true},
		{name: "lowercase nan", input: "nan", wantErr: true},
		{name: "infinity", input: "Inf", wantErr: true},
		{name: "hex float", input: "0x1p-2", wantErr: true},
		{name: "exponent", input: "4e-1", wantErr: true},
		{name: "leading sign", input: "+4.1", wantErr: true},
		{name: "trailing dot", input: "4.", wantErr: true},
		{name: "zero", input: "0", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRating(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRating(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRating(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRatingsCount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "thousands separator", input: "12,345 ratings", want: 12345},
		{name: "millions", input: "9,876,543 ratings · 120,000 reviews", want: 9876543},
		{name: "no separator", input: "87 ratings", want: 87},
		{name: "non-breaking space", input: "12\u00a0345 ratings", want: 12345},
		{name: "missing delimiter", input: "12,345 reviews", wantErr: true},
		{name: "garbage count", input: "many ratings", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRatingsCount(tt.input, "ratings")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRatingsCount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRatingsCount(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRatingsCountErrorType(t *testing.T) {
	_, err := ParseRatingsCount("lots ratings", "ratings")
	var parseErr ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if parseErr.Field != "ratings count" {
		t.Fatalf("field = %q, want %q", parseErr.Field, "ratings count")
	}
}

func TestFindPageCount(t *testing.T) {
	tests := []struct {
		name      string
		blocks    []string
		wantPages int
		wantFound bool
		wantErr   bool
	}{
		{
			name:      "plain marker",
			blocks:    []string{"A sweeping saga.", "352 pages"},
			wantPages: 352,
			wantFound: true,
		},
		{
			name:      "case insensitive with format",
			blocks:    []string{"1,216 Pages, Hardcover"},
			wantPages: 1216,
			wantFound: true,
		},
		{
			name:      "first match wins",
			blocks:    []string{"310 pages, Paperback", "999 pages"},
			wantPages: 310,
			wantFound: true,
		},
		{
			name:      "no marker",
			blocks:    []string{"First published 1965", "Kindle Edition"},
			wantFound: false,
		},
		{
			name:      "no blocks",
			blocks:    nil,
			wantFound: false,
		},
		{
			name:      "marker without leading number",
			blocks:    []string{"Kindle Edition, 412 pages"},
			wantFound: true,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, found, err := FindPageCount(tt.blocks, "pages")
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindPageCount() error = %v, wantErr %v", err, tt.wantErr)
			}
			if found != tt.wantFound {
				t.Fatalf("FindPageCount() found = %v, want %v", found, tt.wantFound)
			}
			if !tt.wantErr && pages != tt.wantPages {
				t.Errorf("FindPageCount() pages = %d, want %d", pages, tt.wantPages)
			}
		})
	}
}

func TestJoinNames(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{name: "single", input: []string{"Frank Herbert"}, expected: "Frank Herbert"},
		{name: "order preserved", input: []string{"Neil Gaiman", "Terry Pratchett"}, expected: "Neil Gaiman, Terry Pratchett"},
		{name: "blanks skipped", input: []string{" ", "Ursula K. Le Guin", ""}, expected: "Ursula K. Le Guin"},
		{name: "empty", input: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinNames(tt.input); got != tt.expected {
				t.Errorf("JoinNames(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  The\n  Hobbit\t"); got != "The Hobbit" {
		t.Errorf("NormalizeText() = %q, want %q", got, "The Hobbit")
	}
}
