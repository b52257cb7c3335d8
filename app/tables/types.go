package tables

import (
	"regexp"
	"time"
)

type RateLimit struct {
	Threshold         int     `yaml:"threshold"`
	Cooldown          int     `yaml:"cooldown"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

func (r RateLimit) CooldownDuration() time.Duration {
	return time.Duration(r.Cooldown) * time.Second
}

// Seed is a start URL together with the metadata every page reached from it inherits.
type Seed struct {
	URL               string `yaml:"url"`
	Category          string `yaml:"category"`
	Gender            string `yaml:"gender"`
	ConsumerLifestage string `yaml:"consumer_lifestage"`
}

// Config describes one output table: where its pages come from and how
// products are extracted from them.
type Config struct {
	Name           string    `yaml:"-"`
	Source         string    `yaml:"source"`
	Country        string    `yaml:"country"`
	Merchant       string    `yaml:"merchant"`
	Extractor      string    `yaml:"extractor"`
	Enabled        bool      `yaml:"enabled"`
	RateLimit      RateLimit `yaml:"rate_limit"`
	Schedule       string    `yaml:"schedule"`
	UserAgent      string    `yaml:"user_agent"`
	MaxDepth       int       `yaml:"max_depth"`
	Seeds          []Seed    `yaml:"seeds"`
	Feeds          []Seed    `yaml:"feeds"`
	DetailPattern  string    `yaml:"detail_pattern"`
	ListingPattern string    `yaml:"listing_pattern"`

	detailRe  *regexp.Regexp
	listingRe *regexp.Regexp
}

// IsDetail reports whether url is a product detail page of this table.
func (c *Config) IsDetail(url string) bool {
	return c.detailRe != nil && c.detailRe.MatchString(url)
}

// IsListing reports whether url is a listing page worth following.
func (c *Config) IsListing(url string) bool {
	return c.listingRe != nil && c.listingRe.MatchString(url)
}
