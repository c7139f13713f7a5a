// Package collysource implements crawler.Source against a Firebase-style item
// API using gocolly.
package collysource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Waiter paces requests; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Limiter   Waiter
}

// Source fetches items with one cloned collector per request.
type Source struct {
	cfg           Config
	baseURL       string
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Source.
func New(cfg Config) (*Source, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("source base url: %w", crawler.ErrNotConfigured)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())

	return &Source{cfg: cfg, baseURL: base, baseCollector: c}, nil
}

// MaxID returns the highest id the remote currently reports.
func (s *Source) MaxID(ctx context.Context) (int64, error) {
	body, err := s.get(ctx, s.baseURL+"/maxitem.json")
	if err != nil {
		return 0, fmt.Errorf("fetch max id: %w", err)
	}
	maxID, err := strconv.ParseInt(string(bytes.TrimSpace(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse max id %q: %w", truncate(body), err)
	}
	return maxID, nil
}

// Item fetches one item. A null or empty body becomes a tombstone.
func (s *Source) Item(ctx context.Context, id int64) (crawler.Item, error) {
	start := time.Now()
	item, err := s.item(ctx, id)
	outcome := metrics.OutcomeItem
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case item.Tombstone:
		outcome = metrics.OutcomeTombstone
	}
	metrics.ObserveFetch(outcome, time.Since(start))
	return item, err
}

func (s *Source) item(ctx context.Context, id int64) (crawler.Item, error) {
	body, err := s.get(ctx, s.itemURL(id))
	if err != nil {
		return crawler.Item{}, fmt.Errorf("fetch item %d: %w", id, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return crawler.Tombstone(id), nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return crawler.Item{}, fmt.Errorf("item %d body is not json: %w", id, err)
	}
	return crawler.Item{ID: id, Payload: compact.Bytes()}, nil
}

func (s *Source) itemURL(id int64) string {
	return s.baseURL + "/item/" + strconv.FormatInt(id, 10) + ".json"
}

func (s *Source) get(ctx context.Context, url string) ([]byte, error) {
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx, url); err != nil {
			return nil, err
		}
	}

	var (
		body     []byte
		fetchErr error
	)
	collector := s.baseCollector.Clone()
	configureCollectorHooks(collector, &body, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}
	return body, nil
}

func configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func truncate(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
	}
}
