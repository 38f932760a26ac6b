package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "journeycal/internal/log"
)

// maxFeedBytes bounds a single feed download.
const maxFeedBytes = 8 << 20

// Source is one subscribed feed and where its events are filed.
type Source struct {
	ID       string
	URL      string
	Name     string
	Calendar string
	Color    string
}

// FetchResult is the body of one feed, fresh or from the disk cache.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body on disk, so a flaky upstream never empties the calendar.
type Fetcher struct {
	client *http.Client
	cache  feedCache
}

// NewFetcher caches under cacheDir. A nil client gets a 15 second timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/journeycal/ics-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cache: feedCache{dir: cacheDir}}
}

// FetchAll fetches every source in order. Results hold only the sources
// that produced a body; the others are reported in errs.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) (results []FetchResult, errs []error) {
	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("ics: fetch %s: %w", src.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne fetches a single source. When the upstream is unreachable or
// answers with an error status the cached body is served instead.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	cached, haveCache := f.cache.get(src.URL)

	body, fresh, err := f.download(ctx, src, cached, haveCache)
	switch {
	case err != nil && haveCache:
		appLog.Warn("ics upstream failed; serving cached feed", "id", src.ID, "err", err.Error(), "cached_at", cached.FetchedAt)
		return FetchResult{Source: src, Body: []byte(cached.Body), FromCache: true}, nil
	case err != nil:
		return FetchResult{}, err
	case !fresh:
		appLog.Debug("ics not modified", "id", src.ID)
		return FetchResult{Source: src, Body: []byte(cached.Body), FromCache: true}, nil
	}

	appLog.Info("ics fetched", "id", src.ID, "bytes", len(body))
	return FetchResult{Source: src, Body: body}, nil
}

// download performs the conditional GET. fresh is false on 304, in which
// case the caller serves the cache.
func (f *Fetcher) download(ctx context.Context, src Source, cached cachedFeed, haveCache bool) (body []byte, fresh bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "text/calendar")
	if haveCache {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && haveCache:
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, false, err
	}
	entry := cachedFeed{
		URL:          src.URL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
		Body:         string(body),
	}
	if err := f.cache.put(entry); err != nil {
		appLog.Error("ics cache write failed", err, "id", src.ID)
	}
	return body, true, nil
}

// redactURL keeps only scheme and host; subscription URLs often carry
// private tokens in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
