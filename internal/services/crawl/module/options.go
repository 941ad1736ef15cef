package module

import (
	"strings"
	"time"

	"repocrawl/internal/platform/config"
	"repocrawl/internal/platform/validate"
	"repocrawl/internal/platform/version"
	"repocrawl/internal/services/crawl/segments"
)

// Options holds configuration options for the crawl module
type Options struct {
	Token string `env:"GITHUB_TOKEN"`
	DBURL string `env:"CRAWL_DB_URL"`

	// segmentation
	Strategy    string    `env:"CRAWL_STRATEGY" validate:"oneof=daterange static starbands"`
	Field       string    `env:"CRAWL_FIELD" validate:"required"`
	From        time.Time `env:"CRAWL_FROM"`
	To          time.Time `env:"CRAWL_TO"`
	Granularity string    `env:"CRAWL_GRANULARITY" validate:"oneof=day week month year"`
	Filter      string    `env:"CRAWL_FILTER"`
	Sort        string    `env:"CRAWL_SORT"`
	Queries     []string  `env:"CRAWL_QUERIES"`
	StarBands   []int     `env:"CRAWL_STAR_BANDS" validate:"omitempty,ascending"`
	FromSegment int       `env:"CRAWL_FROM_SEGMENT" validate:"min=0"`

	// paging
	PageSize  int           `env:"CRAWL_PAGE_SIZE" validate:"min=1,max=100"`
	MaxPages  int           `env:"CRAWL_MAX_PAGES" validate:"min=1"`
	PageDelay time.Duration `env:"CRAWL_PAGE_DELAY" validate:"min=0"`

	// transport
	APIURL        string        `env:"CRAWL_API_URL" validate:"required,url"`
	UserAgent     string        `env:"CRAWL_USER_AGENT" validate:"required"`
	HTTPTimeout   time.Duration `env:"CRAWL_HTTP_TIMEOUT" validate:"gt=0"`
	RetryAttempts int           `env:"CRAWL_RETRY_ATTEMPTS" validate:"min=1,max=20"`
	RetryBase     time.Duration `env:"CRAWL_RETRY_BASE" validate:"gt=0"`
	RetryMax      time.Duration `env:"CRAWL_RETRY_MAX" validate:"gtefield=RetryBase"`
	RPS           float64       `env:"CRAWL_RPS" validate:"min=0"`

	// rate limit governor
	RateMargin   int           `env:"CRAWL_RATE_MARGIN" validate:"min=1"`
	RatePadding  time.Duration `env:"CRAWL_RATE_PADDING" validate:"min=0"`
	RateFallback time.Duration `env:"CRAWL_RATE_FALLBACK" validate:"gt=0"`
	RateMaxWait  time.Duration `env:"CRAWL_RATE_MAX_WAIT" validate:"gtefield=RateFallback"`

	// sink and orchestration
	RefreshSnapshot bool          `env:"CRAWL_REFRESH_SNAPSHOT"`
	Ledger          bool          `env:"CRAWL_LEDGER"`
	SinkRetries     int           `env:"CRAWL_SINK_RETRIES" validate:"min=1"`
	SegmentTimeout  time.Duration `env:"CRAWL_SEGMENT_TIMEOUT" validate:"min=0"`
	DBTimeout       time.Duration `env:"CRAWL_DB_TIMEOUT" validate:"min=0"`
}

// FromConfig reads the crawl options from config with the CRAWL_ prefix.
// GITHUB_TOKEN and DATABASE_URL are read unprefixed
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CRAWL_")
	now := time.Now().UTC()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	return Options{
		Token: cfg.MayString("GITHUB_TOKEN", ""),
		DBURL: c.MayString("DB_URL", cfg.MayString("DATABASE_URL", "")),

		Strategy: c.MayEnum("STRATEGY", segments.StrategyDateRange,
			segments.StrategyDateRange, segments.StrategyStatic, segments.StrategyStarBands),
		Field:       c.MayString("FIELD", "created"),
		From:        c.MustDate("FROM", time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)),
		To:          c.MustDate("TO", month),
		Granularity: c.MayEnum("GRANULARITY", segments.Month, segments.Day, segments.Week, segments.Month, segments.Year),
		Filter:      c.MayString("FILTER", "stars:>1000"),
		Sort:        c.MayString("SORT", "stars-desc"),
		Queries:     c.MayCSV("QUERIES", segments.DefaultQueries),
		StarBands:   c.MayInts("STAR_BANDS", []int{5000, 10000}),
		FromSegment: c.MayInt("FROM_SEGMENT", 0),

		PageSize:  c.MayInt("PAGE_SIZE", 50),
		MaxPages:  c.MayInt("MAX_PAGES", 20),
		PageDelay: c.MayDuration("PAGE_DELAY", 2*time.Second),

		APIURL:        c.MayString("API_URL", "https://api.github.com/graphql"),
		UserAgent:     c.MayString("USER_AGENT", version.Info().UserAgent()),
		HTTPTimeout:   c.MayDuration("HTTP_TIMEOUT", 30*time.Second),
		RetryAttempts: c.MayInt("RETRY_ATTEMPTS", 5),
		RetryBase:     c.MayDuration("RETRY_BASE", 2*time.Second),
		RetryMax:      c.MayDuration("RETRY_MAX", 60*time.Second),
		RPS:           c.MayFloat64("RPS", 0),

		RateMargin:   c.MayInt("RATE_MARGIN", 100),
		RatePadding:  c.MayDuration("RATE_PADDING", 5*time.Second),
		RateFallback: c.MayDuration("RATE_FALLBACK", 60*time.Second),
		RateMaxWait:  c.MayDuration("RATE_MAX_WAIT", 65*time.Minute),

		RefreshSnapshot: c.MayBool("REFRESH_SNAPSHOT", false),
		Ledger:          c.MayBool("LEDGER", true),
		SinkRetries:     c.MayInt("SINK_RETRIES", 3),
		SegmentTimeout:  c.MayDuration("SEGMENT_TIMEOUT", 0),
		DBTimeout:       c.MayDuration("DB_TIMEOUT", 30*time.Second),
	}
}

// Validate normalizes enum-like fields, then checks the assembled options.
// Strategy specific checks happen when segments are planned
func (o *Options) Validate() error {
	o.Strategy = strings.ToLower(strings.TrimSpace(o.Strategy))
	o.Granularity = strings.ToLower(strings.TrimSpace(o.Granularity))
	return validate.Struct(o)
}

// Segments projects the options onto a strategy configuration
func (o Options) Segments() segments.Options {
	return segments.Options{
		Strategy:    o.Strategy,
		Field:       o.Field,
		From:        o.From,
		To:          o.To,
		Granularity: o.Granularity,
		Filter:      o.Filter,
		Sort:        o.Sort,
		Queries:     o.Queries,
		Bands:       o.StarBands,
	}
}
