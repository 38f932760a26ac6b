// Package store owns the calendar state: the event repository and the
// calendar registry. Both keep their collection in memory and rewrite their
// storage slot after every mutation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appLog "journeycal/internal/log"
	"journeycal/internal/model"
	"journeycal/internal/storage"
)

// Events is the event repository. It is safe for concurrent use.
type Events struct {
	mu      sync.RWMutex
	backend storage.Backend
	key     string
	events  []model.CalendarEvent

	now      func() time.Time
	newID    func() string
	validate *validator.Validate
}

// Option customizes a repository.
type Option func(*Events)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Events) { e.now = now }
}

// WithIDGenerator replaces the default UUIDv7 generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Events) { e.newID = gen }
}

// WithKey overrides the slot key (default storage.EventsKey).
func WithKey(key string) Option {
	return func(e *Events) { e.key = key }
}

// NewEvents returns an empty repository bound to backend. Call Load to
// restore the persisted collection.
func NewEvents(backend storage.Backend, opts ...Option) *Events {
	e := &Events{
		backend:  backend,
		key:      storage.EventsKey,
		events:   []model.CalendarEvent{},
		now:      time.Now,
		newID:    newEventID,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newEventID returns a UUIDv7: a millisecond timestamp followed by random
// bits, so ids sort by creation time and do not collide within a millisecond.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// timestamp matches the millisecond precision of the persisted ISO strings.
func (e *Events) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// Load replaces the in-memory collection with the persisted slot. An absent
// slot yields LoadFresh; undecodable content yields a *CorruptSlotError and
// an empty collection.
func (e *Events) Load(ctx context.Context) (LoadStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = []model.CalendarEvent{}

	data, err := e.backend.Load(ctx, e.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoadFresh, nil
		}
		return LoadFresh, err
	}

	var events []model.CalendarEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return LoadFresh, &CorruptSlotError{Key: e.key, Err: err}
	}
	if events != nil {
		e.events = events
	}
	appLog.Debug("events loaded", "key", e.key, "count", len(e.events))
	return LoadRestored, nil
}

// Create validates in, assigns an id and timestamps, appends and persists.
// A persist failure is returned but the event stays in memory.
func (e *Events) Create(ctx context.Context, in model.CreateEventInput) (model.CalendarEvent, error) {
	if err := check(e.validate, in); err != nil {
		return model.CalendarEvent{}, err
	}

	ts := e.timestamp()
	ev := model.CalendarEvent{
		ID:           e.newID(),
		Title:        in.Title,
		Date:         in.Date,
		Time:         in.Time,
		City:         in.City,
		CityLocation: in.CityLocation,
		Calendar:     in.Calendar,
		Color:        in.Color,
		Weather:      in.Weather,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	ev = ev.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, ev)
	return ev.Clone(), e.persistLocked(ctx)
}

// Update merges the non-nil fields of in over the stored event. It returns
// false without touching state or storage when the id is unknown.
func (e *Events) Update(ctx context.Context, in model.UpdateEventInput) (model.CalendarEvent, bool, error) {
	if err := check(e.validate, in); err != nil {
		return model.CalendarEvent{}, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(in.ID)
	if idx < 0 {
		return model.CalendarEvent{}, false, nil
	}

	ev := e.events[idx].Clone()
	if in.Title != nil {
		ev.Title = *in.Title
	}
	if in.Date != nil {
		ev.Date = *in.Date
	}
	if in.Time != nil {
		ev.Time = *in.Time
	}
	if in.City != nil {
		ev.City = *in.City
	}
	if in.CityLocation != nil {
		loc := *in.CityLocation
		ev.CityLocation = &loc
	}
	if in.Weather != nil {
		w := *in.Weather
		ev.Weather = &w
	}
	if in.Calendar != nil {
		ev.Calendar = *in.Calendar
	}
	if in.Color != nil {
		ev.Color = *in.Color
	}

	ts := e.timestamp()
	if ts.Before(ev.CreatedAt) {
		ts = ev.CreatedAt
	}
	ev.UpdatedAt = ts

	e.events[idx] = ev
	return ev.Clone(), true, e.persistLocked(ctx)
}

// UpsertItem is one entry of a batch upsert.
type UpsertItem struct {
	ID    string
	Input model.CreateEventInput
}

// UpsertResult counts the outcome of a batch upsert.
type UpsertResult struct {
	Created   int
	Updated   int
	Unchanged int
}

type upsertStatus int

const (
	upsertCreated upsertStatus = iota
	upsertUpdated
	upsertUnchanged
)

// Upsert creates or fully replaces the event with the given id, keeping the
// original createdAt on replacement. It is used for imported events whose id
// is derived from their source. An input equal to the stored event changes
// nothing, updatedAt included, and does not write the slot.
func (e *Events) Upsert(ctx context.Context, id string, in model.CreateEventInput) (model.CalendarEvent, bool, error) {
	if err := e.checkUpsert(id, in); err != nil {
		return model.CalendarEvent{}, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ev, status := e.upsertLocked(id, in, e.timestamp())
	if status == upsertUnchanged {
		return ev, false, nil
	}
	return ev, status == upsertCreated, e.persistLocked(ctx)
}

// UpsertMany applies Upsert to every item under one lock and writes the slot
// at most once. Invalid items are skipped; their errors are joined with any
// persist error.
func (e *Events) UpsertMany(ctx context.Context, items []UpsertItem) (UpsertResult, error) {
	var res UpsertResult
	var errs []error

	valid := make([]UpsertItem, 0, len(items))
	for _, it := range items {
		if err := e.checkUpsert(it.ID, it.Input); err != nil {
			errs = append(errs, fmt.Errorf("upsert %s: %w", it.ID, err))
			continue
		}
		valid = append(valid, it)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.timestamp()
	for _, it := range valid {
		switch _, status := e.upsertLocked(it.ID, it.Input, ts); status {
		case upsertCreated:
			res.Created++
		case upsertUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}
	if res.Created+res.Updated > 0 {
		if err := e.persistLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (e *Events) checkUpsert(id string, in model.CreateEventInput) error {
	if id == "" {
		return &ValidationError{Fields: []FieldError{{Field: "id", Rule: "required"}}}
	}
	return check(e.validate, in)
}

// upsertLocked returns a copy of the resulting event. Caller must hold the
// write lock.
func (e *Events) upsertLocked(id string, in model.CreateEventInput, ts time.Time) (model.CalendarEvent, upsertStatus) {
	ev := model.CalendarEvent{
		ID:           id,
		Title:        in.Title,
		Date:         in.Date,
		Time:         in.Time,
		City:         in.City,
		CityLocation: in.CityLocation,
		Calendar:     in.Calendar,
		Color:        in.Color,
		Weather:      in.Weather,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}.Clone()

	idx := e.indexLocked(id)
	if idx < 0 {
		e.events = append(e.events, ev)
		return ev.Clone(), upsertCreated
	}

	old := e.events[idx]
	if sameContent(old, ev) {
		return old.Clone(), upsertUnchanged
	}
	ev.CreatedAt = old.CreatedAt
	if ev.UpdatedAt.Before(ev.CreatedAt) {
		ev.UpdatedAt = ev.CreatedAt
	}
	e.events[idx] = ev
	return ev.Clone(), upsertUpdated
}

// sameContent compares the user-visible fields, ignoring id and timestamps.
func sameContent(a, b model.CalendarEvent) bool {
	return a.Title == b.Title && a.Date == b.Date && a.Time == b.Time &&
		a.City == b.City && a.Calendar == b.Calendar && a.Color == b.Color &&
		equalPtr(a.CityLocation, b.CityLocation) && equalPtr(a.Weather, b.Weather)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteByID removes the event and reports whether it existed. Storage is
// only written when something was removed.
func (e *Events) DeleteByID(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return false, nil
	}
	e.events = append(e.events[:idx], e.events[idx+1:]...)
	return true, e.persistLocked(ctx)
}

// DeleteByDate removes every event on date (YYYY-MM-DD) and returns how many
// were removed.
func (e *Events) DeleteByDate(ctx context.Context, date string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := make([]model.CalendarEvent, 0, len(e.events))
	for _, ev := range e.events {
		if ev.Date != date {
			kept = append(kept, ev)
		}
	}
	removed := len(e.events) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	e.events = kept
	return removed, e.persistLocked(ctx)
}

// DeleteWhere removes every event for which match returns true. ICS sync
// uses it to drop events that disappeared from a feed.
func (e *Events) DeleteWhere(ctx context.Context, match func(model.CalendarEvent) bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := make([]model.CalendarEvent, 0, len(e.events))
	for _, ev := range e.events {
		if !match(ev) {
			kept = append(kept, ev)
		}
	}
	removed := len(e.events) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	e.events = kept
	return removed, e.persistLocked(ctx)
}

// ClearAll empties the collection and always persists.
func (e *Events) ClearAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = []model.CalendarEvent{}
	return e.persistLocked(ctx)
}

// ByID returns a copy of the event with id.
func (e *Events) ByID(id string) (model.CalendarEvent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return model.CalendarEvent{}, false
	}
	return e.events[idx].Clone(), true
}

// All returns a copy of the collection in insertion order.
func (e *Events) All() []model.CalendarEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filterLocked(func(model.CalendarEvent) bool { return true })
}

// Count returns the number of stored events.
func (e *Events) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events)
}

// ByDate returns the events on date ordered by time of day.
func (e *Events) ByDate(date string) []model.CalendarEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.filterLocked(func(ev model.CalendarEvent) bool { return ev.Date == date })
	SortByTime(out)
	return out
}

// VisibleByDate is ByDate restricted to the given calendar ids.
func (e *Events) VisibleByDate(date string, visibleCalendarIDs []string) []model.CalendarEvent {
	visible := make(map[string]struct{}, len(visibleCalendarIDs))
	for _, id := range visibleCalendarIDs {
		visible[id] = struct{}{}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.filterLocked(func(ev model.CalendarEvent) bool {
		if ev.Date != date {
			return false
		}
		_, ok := visible[ev.Calendar]
		return ok
	})
	SortByTime(out)
	return out
}

// InRange returns events whose date lies in [from, to] (YYYY-MM-DD,
// inclusive), ordered by date then time.
func (e *Events) InRange(from, to string) []model.CalendarEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.filterLocked(func(ev model.CalendarEvent) bool {
		return ev.Date >= from && ev.Date <= to
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Minutes() < out[j].Minutes()
	})
	return out
}

// SortByTime orders events of one day by their HH:MM time, keeping insertion
// order for equal times.
func SortByTime(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Minutes() < events[j].Minutes()
	})
}

// Snapshot returns the exact bytes the repository would persist now.
func (e *Events) Snapshot() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return json.Marshal(e.events)
}

func (e *Events) indexLocked(id string) int {
	for i := range e.events {
		if e.events[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Events) filterLocked(keep func(model.CalendarEvent) bool) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	for _, ev := range e.events {
		if keep(ev) {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// persistLocked serializes the whole collection into the slot. Caller must
// hold the write lock.
func (e *Events) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(e.events)
	if err != nil {
		return &PersistError{Key: e.key, Err: err}
	}
	if err := e.backend.Save(ctx, e.key, data); err != nil {
		appLog.Error("events persist failed", err, "key", e.key, "count", len(e.events))
		return &PersistError{Key: e.key, Err: err}
	}
	return nil
}
