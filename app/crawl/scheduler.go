// Package crawl fetches the pages of one table and hands every response to
// the ingest queue.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/product-comb/app/fingerprint"
	"github.com/lysyi3m/product-comb/app/gate"
	"github.com/lysyi3m/product-comb/app/metrics"
	"github.com/lysyi3m/product-comb/app/product"
	"github.com/lysyi3m/product-comb/app/queue"
	"github.com/lysyi3m/product-comb/app/tables"
)

const (
	DefaultWorkers        = 4
	DefaultRequestTimeout = 30 * time.Second
	DefaultUserAgent      = "product-comb/1.0"
)

const requestKey = "crawl_request"

// Enqueuer publishes fetched pages.
type Enqueuer interface {
	EnqueueIngest(ctx context.Context, p queue.IngestPayload) (queue.JobHandle, error)
}

var _ Enqueuer = (*queue.Client)(nil)

// Stats summarises one crawl run.
type Stats struct {
	Fetched    int64
	Failed     int64
	Duplicates int64
	Enqueued   int64
}

type Scheduler struct {
	table      *tables.Config
	gate       *gate.Gate
	queue      Enqueuer
	workers    int
	timeout    time.Duration
	agent      string
	httpClient *http.Client
	now        func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	running  sync.Mutex
}

type Option func(*Scheduler)

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithUserAgent sets the user agent of tables that do not name their own.
func WithUserAgent(ua string) Option {
	return func(s *Scheduler) {
		if ua != "" {
			s.agent = ua
		}
	}
}

// WithHTTPClient sets the client used to download product feeds.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scheduler) { s.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates the crawler of one table. The gate is shared by all
// schedulers so that tables of the same source share one request budget.
func NewScheduler(table *tables.Config, g *gate.Gate, q Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		table:      table,
		gate:       g,
		queue:      q,
		workers:    DefaultWorkers,
		timeout:    DefaultRequestTimeout,
		agent:      DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}

	g.Configure(table.Source, gate.Config{
		Threshold: table.RateLimit.Threshold,
		Cooldown:  table.RateLimit.CooldownDuration(),
	})
	return s
}

func (s *Scheduler) Table() string {
	return s.table.Name
}

func (s *Scheduler) userAgent() string {
	if s.table.UserAgent != "" {
		return s.table.UserAgent
	}
	return s.agent
}

// hostLimiter returns the politeness limiter of host, creating it on first use.
func (s *Scheduler) hostLimiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[host]
	if !ok {
		rps := s.table.RateLimit.RequestsPerSecond
		if rps <= 0 {
			l = rate.NewLimiter(rate.Inf, 1)
		} else {
			l = rate.NewLimiter(rate.Limit(rps), 1)
		}
		s.limiters[host] = l
	}
	return l
}

// Seeds returns the start requests of the table: configured seeds plus the
// item links of its product feeds. Feed failures are logged and skipped.
func (s *Scheduler) Seeds(ctx context.Context) []Request {
	reqs := make([]Request, 0, len(s.table.Seeds))
	for _, seed := range s.table.Seeds {
		kind := product.PageKindListing
		if s.table.IsDetail(seed.URL) {
			kind = product.PageKindDetail
		}
		reqs = append(reqs, Request{URL: seed.URL, Kind: kind, Meta: seedMeta(seed)})
	}

	if len(s.table.Feeds) > 0 {
		feedReqs, err := FeedSeeds(ctx, s.table.Feeds, s.httpClient, s.userAgent())
		if err != nil {
			slog.Warn("Failed to read product feeds", "table", s.table.Name, "error", err)
		}
		reqs = append(reqs, feedReqs...)
	}
	return reqs
}

// Run crawls the table until the frontier drains or ctx ends. Every run
// starts with an empty duplicate filter.
func (s *Scheduler) Run(ctx context.Context) (Stats, error) {
	s.running.Lock()
	defer s.running.Unlock()

	r := &run{
		Scheduler: s,
		ctx:       ctx,
		frontier:  NewFrontier(),
		filter:    fingerprint.NewFilter(),
	}
	r.collector = r.newCollector()

	start := time.Now()
	slog.Info("Crawl started", "table", s.table.Name, "workers", s.workers)

	for _, req := range s.Seeds(ctx) {
		r.schedule(req)
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			r.frontier.Stop()
		case <-finished:
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker()
		}()
	}
	wg.Wait()

	stats := r.stats()
	slog.Info("Crawl finished",
		"table", s.table.Name,
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"duplicates", stats.Duplicates,
		"enqueued", stats.Enqueued,
		"duration", time.Since(start))

	return stats, ctx.Err()
}

// run is the state of one crawl session.
type run struct {
	*Scheduler
	ctx       context.Context
	frontier  *Frontier
	filter    *fingerprint.Filter
	collector *colly.Collector

	fetched    atomic.Int64
	failed     atomic.Int64
	duplicates atomic.Int64
	enqueued   atomic.Int64
}

func (r *run) stats() Stats {
	return Stats{
		Fetched:    r.fetched.Load(),
		Failed:     r.failed.Load(),
		Duplicates: r.duplicates.Load(),
		Enqueued:   r.enqueued.Load(),
	}
}

func (r *run) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(r.userAgent()),
		colly.AllowURLRevisit(),
		colly.MaxDepth(0),
	)
	c.SetRequestTimeout(r.timeout)

	c.OnResponse(r.handleResponse)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		req, ok := e.Request.Ctx.GetAny(requestKey).(Request)
		if !ok || req.Kind != product.PageKindListing || req.Depth >= r.table.MaxDepth {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		r.follow(req, link)
	})

	c.OnError(func(resp *colly.Response, err error) {
		if resp == nil || resp.Request == nil {
			slog.Warn("Failed to fetch page", "table", r.table.Name, "error", err)
			return
		}
		slog.Warn("Failed to fetch page", "table", r.table.Name, "url", resp.Request.URL.String(), "status", resp.StatusCode, "error", err)
	})

	return c
}

// schedule drops requests already seen in this run and queues the rest.
func (r *run) schedule(req Request) {
	seen, err := r.filter.Seen(fingerprint.Request{
		Method: http.MethodGet,
		URL:    req.URL,
		Meta:   req.Meta,
	})
	if err != nil {
		slog.Debug("Skipping unparsable url", "table", r.table.Name, "url", req.URL, "error", err)
		return
	}
	if seen {
		r.duplicates.Add(1)
		metrics.CrawlRequests.WithLabelValues(r.table.Name, "duplicate").Inc()
		return
	}
	r.frontier.Push(req)
}

func (r *run) follow(parent Request, link string) {
	var kind product.PageKind
	switch {
	case r.table.IsDetail(link):
		kind = product.PageKindDetail
	case r.table.IsListing(link):
		kind = product.PageKindListing
	default:
		return
	}

	r.schedule(Request{
		URL:     link,
		Kind:    kind,
		Meta:    parent.Meta,
		Depth:   parent.Depth + 1,
		Referer: parent.URL,
	})
}

func (r *run) worker() {
	for {
		req, ok := r.frontier.Pop()
		if !ok {
			return
		}
		r.fetch(req)
		r.frontier.Done()
	}
}

func (r *run) fetch(req Request) {
	u, err := url.Parse(req.URL)
	if err != nil {
		r.failed.Add(1)
		return
	}

	if err := r.gate.Wait(r.ctx, r.table.Source); err != nil {
		return
	}
	if err := r.hostLimiter(u.Host).Wait(r.ctx); err != nil {
		return
	}

	cctx := colly.NewContext()
	cctx.Put(requestKey, req)

	var hdr http.Header
	if req.Referer != "" {
		hdr = http.Header{"Referer": []string{req.Referer}}
	}

	if err := r.collector.Request(http.MethodGet, req.URL, nil, cctx, hdr); err != nil {
		r.failed.Add(1)
		metrics.CrawlRequests.WithLabelValues(r.table.Name, "error").Inc()
	}
}

func (r *run) handleResponse(resp *colly.Response) {
	req, ok := resp.Ctx.GetAny(requestKey).(Request)
	if !ok {
		return
	}
	r.fetched.Add(1)

	extra := map[string]string{
		"status_code":  strconv.Itoa(resp.StatusCode),
		"depth":        strconv.Itoa(req.Depth),
		"content_type": resp.Headers.Get("Content-Type"),
	}
	if req.Referer != "" {
		extra["referer"] = req.Referer
	}
	if final := resp.Request.URL.String(); final != req.URL {
		extra["final_url"] = final
	}

	page := product.RawPage{
		Table:             r.table.Name,
		Timestamp:         r.now().UTC(),
		SourceURL:         req.URL,
		Body:              string(resp.Body),
		Kind:              req.Kind,
		Category:          req.Meta[product.MetaCategory],
		Gender:            req.Meta[product.MetaGender],
		ConsumerLifestage: req.Meta[product.MetaConsumerLifestage],
		Extra:             extra,
	}

	job, err := r.queue.EnqueueIngest(r.ctx, queue.IngestPayload{Table: r.table.Name, Page: page})
	if err != nil {
		r.failed.Add(1)
		metrics.CrawlRequests.WithLabelValues(r.table.Name, "enqueue_error").Inc()
		slog.Error("Failed to enqueue page", "table", r.table.Name, "url", req.URL, "error", err)
		return
	}

	r.enqueued.Add(1)
	metrics.CrawlRequests.WithLabelValues(r.table.Name, "fetched").Inc()
	slog.Debug("Page fetched", "table", r.table.Name, "url", req.URL, "kind", req.Kind, "depth", req.Depth, "status", resp.StatusCode, "job_id", job.ID)
}

func seedMeta(seed tables.Seed) map[string]string {
	meta := map[string]string{product.MetaCategory: seed.Category}
	if seed.Gender != "" {
		meta[product.MetaGender] = seed.Gender
	}
	if seed.ConsumerLifestage != "" {
		meta[product.MetaConsumerLifestage] = seed.ConsumerLifestage
	}
	return meta
}

func (s Stats) String() string {
	return fmt.Sprintf("fetched=%d failed=%d duplicates=%d enqueued=%d", s.Fetched, s.Failed, s.Duplicates, s.Enqueued)
}
