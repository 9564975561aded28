package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables selecting the configuration document.
const (
	EnvConfigName = "CONFIG_NAME"
	EnvConfigPath = "CONFIG_PATH"

	DefaultConfigName = "goodreads"
	DefaultConfigPath = "config.yaml"
)

// document is one named section of the YAML configuration file.
type document struct {
	URLs struct {
		Books       string `yaml:"books"`
		BookDetails string `yaml:"book_details"`
	} `yaml:"urls"`
	Selectors struct {
		BookTitle  string `yaml:"book_title"`
		Genre      string `yaml:"genre"`
		Author     string `yaml:"author"`
		Rating     string `yaml:"rating"`
		RatingMeta string `yaml:"rating_meta"`
		ShowMore   string `yaml:"show_more"`
		TagP       string `yaml:"tag_p"`
		BookLink   string `yaml:"book_link"`
	} `yaml:"selectors"`
	Headers struct {
		UserAgent string `yaml:"user_agent"`
	} `yaml:"headers"`
	Output struct {
		Fieldnames []string `yaml:"fieldnames"`
		CSVPath    string   `yaml:"csv_path"`
		Format     string   `yaml:"format"`
	} `yaml:"output"`
	Crawl crawlSection `yaml:"crawl"`
}

// crawlSection uses pointers so omitted keys keep their defaults.
type crawlSection struct {
	Target          *int           `yaml:"target"`
	Workers         *int           `yaml:"workers"`
	MaxEmptyPages   *int           `yaml:"max_empty_pages"`
	MaxListingPages *int           `yaml:"max_listing_pages"`
	Backend         *string        `yaml:"backend"`
	Headless        *bool          `yaml:"headless"`
	WindowWidth     *int           `yaml:"window_width"`
	WindowHeight    *int           `yaml:"window_height"`
	Delay           *time.Duration `yaml:"delay"`
	ListingTimeout  *time.Duration `yaml:"listing_timeout"`
	TitleTimeout    *time.Duration `yaml:"title_timeout"`
	ReadyTimeout    *time.Duration `yaml:"ready_timeout"`
	ShowMoreTimeout *time.Duration `yaml:"show_more_timeout"`
	RequestTimeout  *time.Duration `yaml:"request_timeout"`
	CacheSize       *int           `yaml:"cache_size"`
	IDMarker        *string        `yaml:"id_marker"`
	RatingsDelim    *string        `yaml:"ratings_delimiter"`
	PagesMarker     *string        `yaml:"pages_marker"`
}

// Load reads section name of the YAML file at path on top of DefaultConfig.
func Load(path, name string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data, name)
}

// Parse decodes section name of a YAML document on top of DefaultConfig.
func Parse(data []byte, name string) (*Config, error) {
	var sections map[string]document
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	doc, ok := sections[name]
	if !ok {
		return nil, fmt.Errorf("config section %q not found", name)
	}

	cfg := DefaultConfig()
	doc.apply(cfg)
	return cfg, nil
}

// LoadFromEnv resolves the file and section from CONFIG_PATH and
// CONFIG_NAME. A missing file at the default path yields DefaultConfig.
func LoadFromEnv() (*Config, error) {
	path, explicit := EnvString(EnvConfigPath)
	if !explicit {
		path = DefaultConfigPath
	}
	name, ok := EnvString(EnvConfigName)
	if !ok {
		name = DefaultConfigName
	}

	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) && !explicit {
		return DefaultConfig(), nil
	}
	return Load(path, name)
}

func (d *document) apply(cfg *Config) {
	setString(&cfg.ListingURL, d.URLs.Books)
	setString(&cfg.DetailURLTemplate, d.URLs.BookDetails)

	setString(&cfg.Selectors.Title, d.Selectors.BookTitle)
	setString(&cfg.Selectors.Genre, d.Selectors.Genre)
	setString(&cfg.Selectors.Author, d.Selectors.Author)
	setString(&cfg.Selectors.Rating, d.Selectors.Rating)
	setString(&cfg.Selectors.RatingMeta, d.Selectors.RatingMeta)
	setString(&cfg.Selectors.ShowMore, d.Selectors.ShowMore)
	setString(&cfg.Selectors.Paragraph, d.Selectors.TagP)
	setString(&cfg.Selectors.BookLink, d.Selectors.BookLink)

	setString(&cfg.UserAgent, d.Headers.UserAgent)
	if len(d.Output.Fieldnames) > 0 {
		cfg.Fields = append([]string(nil), d.Output.Fieldnames...)
	}
	setString(&cfg.OutputFile, d.Output.CSVPath)
	setString(&cfg.OutputFormat, strings.ToLower(d.Output.Format))

	c := d.Crawl
	setPtr(&cfg.TargetCount, c.Target)
	setPtr(&cfg.Workers, c.Workers)
	setPtr(&cfg.MaxEmptyPages, c.MaxEmptyPages)
	setPtr(&cfg.MaxListingPages, c.MaxListingPages)
	setPtr(&cfg.Backend, c.Backend)
	setPtr(&cfg.Headless, c.Headless)
	setPtr(&cfg.WindowWidth, c.WindowWidth)
	setPtr(&cfg.WindowHeight, c.WindowHeight)
	setPtr(&cfg.Delay, c.Delay)
	setPtr(&cfg.ListingTimeout, c.ListingTimeout)
	setPtr(&cfg.TitleTimeout, c.TitleTimeout)
	setPtr(&cfg.ReadyTimeout, c.ReadyTimeout)
	setPtr(&cfg.ShowMoreTimeout, c.ShowMoreTimeout)
	setPtr(&cfg.RequestTimeout, c.RequestTimeout)
	setPtr(&cfg.CacheSize, c.CacheSize)
	setPtr(&cfg.IDMarker, c.IDMarker)
	setPtr(&cfg.RatingsDelimiter, c.RatingsDelim)
	setPtr(&cfg.PagesMarker, c.PagesMarker)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setPtr[T any](dst *T, value *T) {
	if value != nil {
		*dst = *value
	}
}

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (value int, ok bool, err error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}
