package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// cachedFeed is the last good copy of a feed with its validators.
type cachedFeed struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"lastModified,omitempty"`
	FetchedAt    time.Time `json:"fetchedAt"`
	Body         string    `json:"body"`
}

// feedCache keeps one JSON file per feed URL under dir.
type feedCache struct {
	dir string
}

func (c feedCache) path(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])+".json")
}

// get returns the cached copy of feedURL, or ok=false when there is none
// or it cannot be read.
func (c feedCache) get(feedURL string) (cachedFeed, bool) {
	data, err := os.ReadFile(c.path(feedURL))
	if err != nil {
		return cachedFeed{}, false
	}
	var cf cachedFeed
	if err := json.Unmarshal(data, &cf); err != nil || cf.URL != feedURL || cf.Body == "" {
		return cachedFeed{}, false
	}
	return cf, true
}

// put replaces the cached copy atomically.
func (c feedCache) put(cf cachedFeed) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(cf)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, ".feed-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(cf.URL))
}
