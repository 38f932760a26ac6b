package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"journeycal/internal/config"
	appLog "journeycal/internal/log"
	"journeycal/internal/model"
	"journeycal/internal/store"
)

// DefaultHorizonDays is how far ahead feeds are imported.
const DefaultHorizonDays = 16

// IDPrefix marks events that came from a feed.
const IDPrefix = "ics-"

// EventID derives a stable id for one occurrence so repeated syncs replace
// instead of duplicating.
func EventID(sourceID, uid, instanceKey string) string {
	sum := sha256.Sum256([]byte(uid + "|" + instanceKey))
	return IDPrefix + sourceID + "-" + hex.EncodeToString(sum[:8])
}

// ToInput maps an occurrence onto the repository's create input.
func ToInput(occ Occurrence) model.CreateEventInput {
	title := strings.TrimSpace(unescapeText(occ.Summary))
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:model.MaxTitleLength]))
	}
	if title == "" {
		title = "(untitled)"
	}

	clock := occ.Start.Format(model.TimeLayout)
	if occ.AllDay {
		clock = "00:00"
	}

	city := strings.TrimSpace(unescapeText(occ.Location))
	if city == "" {
		city = occ.Source.Name
	}
	if city == "" {
		city = occ.Source.ID
	}

	color := model.Color(occ.Source.Color)
	if !color.Valid() {
		color = model.ColorBlue
	}
	calendar := occ.Source.Calendar
	if calendar == "" {
		calendar = "personal"
	}

	return model.CreateEventInput{
		Title:    title,
		Date:     occ.Start.Format(model.DateLayout),
		Time:     clock,
		City:     city,
		Calendar: calendar,
		Color:    color,
	}
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, ",", `\;`, ";", `\n`, " ", `\N`, " ")

// unescapeText undoes RFC 5545 TEXT escaping.
func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}

// SourcesFromConfig converts configured subscriptions.
func SourcesFromConfig(subs []config.ICSConfig) []Source {
	out := make([]Source, 0, len(subs))
	for _, sub := range subs {
		out = append(out, Source{ID: sub.ID, URL: sub.URL, Name: sub.Name, Calendar: sub.Calendar, Color: sub.Color})
	}
	return out
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Created   int
	Updated   int
	Unchanged int
	Removed   int
}

// Syncer imports feed occurrences into the event repository.
type Syncer struct {
	fetcher     *Fetcher
	events      *store.Events
	loc         *time.Location
	horizonDays int
	now         func() time.Time
}

func NewSyncer(fetcher *Fetcher, events *store.Events, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.Local
	}
	return &Syncer{
		fetcher:     fetcher,
		events:      events,
		loc:         loc,
		horizonDays: DefaultHorizonDays,
		now:         time.Now,
	}
}

// window is [today 00:00, today+horizon 23:59:59] in the display zone.
func (s *Syncer) window() (time.Time, time.Time) {
	now := s.now().In(s.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, s.horizonDays+1).Add(-time.Second)
	return from, to
}

// Sync fetches every source and upserts its occurrences within the horizon.
// Previously imported events of a fetched source that fall inside the
// window but are no longer in the feed are removed. Sources that fail to
// fetch keep their events.
func (s *Syncer) Sync(ctx context.Context, sources []Source) (SyncResult, error) {
	results, errs := s.fetcher.FetchAll(ctx, sources)

	var total SyncResult
	for _, res := range results {
		r, err := s.Import(ctx, res.Source, res.Body)
		total.Created += r.Created
		total.Updated += r.Updated
		total.Unchanged += r.Unchanged
		total.Removed += r.Removed
		if err != nil {
			errs = append(errs, err)
		}
	}

	appLog.Info("ics sync done", "sources", len(sources), "created", total.Created, "updated", total.Updated, "unchanged", total.Unchanged, "removed", total.Removed, "errors", len(errs))
	return total, errors.Join(errs...)
}

// Import parses body as src and reconciles the repository with it.
func (s *Syncer) Import(ctx context.Context, src Source, body []byte) (SyncResult, error) {
	var res SyncResult

	parsed, err := ParseICS(src, body)
	if err != nil {
		return res, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}
	from, to := s.window()
	occs, err := ExpandOccurrences(parsed, ExpandConfig{DisplayLocation: s.loc, RangeStart: from, RangeEnd: to})
	if err != nil {
		return res, fmt.Errorf("ics: expand %s: %w", src.ID, err)
	}

	seen := make(map[string]struct{}, len(occs))
	items := make([]store.UpsertItem, 0, len(occs))
	for _, occ := range occs {
		id := EventID(src.ID, occ.UID, occ.InstanceKey)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, store.UpsertItem{ID: id, Input: ToInput(occ)})
	}

	var errs []error
	up, err := s.events.UpsertMany(ctx, items)
	res.Created, res.Updated, res.Unchanged = up.Created, up.Updated, up.Unchanged
	if err != nil {
		errs = append(errs, fmt.Errorf("ics: import %s: %w", src.ID, err))
	}

	prefix := IDPrefix + src.ID + "-"
	fromDate, toDate := from.Format(model.DateLayout), to.Format(model.DateLayout)
	removed, err := s.events.DeleteWhere(ctx, func(ev model.CalendarEvent) bool {
		rest, ok := strings.CutPrefix(ev.ID, prefix)
		if !ok || strings.Contains(rest, "-") || ev.Date < fromDate || ev.Date > toDate {
			return false
		}
		_, ok = seen[ev.ID]
		return !ok
	})
	res.Removed = removed
	if err != nil {
		errs = append(errs, err)
	}

	return res, errors.Join(errs...)
}
