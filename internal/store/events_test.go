package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"journeycal/internal/model"
	"journeycal/internal/storage"
)

// fakeClock returns a clock that advances one second per call.
func fakeClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func newTestEvents(t *testing.T) (*Events, *storage.MemoryBackend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	repo := NewEvents(backend, WithClock(fakeClock(time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC))))
	if _, err := repo.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return repo, backend
}

func input(title, date, clock string) model.CreateEventInput {
	return model.CreateEventInput{
		Title:    title,
		Date:     date,
		Time:     clock,
		City:     "Tokyo",
		Calendar: "work",
		Color:    model.ColorBlue,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	repo, backend := newTestEvents(t)
	ctx := context.Background()

	ev, err := repo.Create(ctx, input("Team Meeting", "2025-11-15", "14:30"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if !ev.CreatedAt.Equal(ev.UpdatedAt) {
		t.Errorf("createdAt %v != updatedAt %v", ev.CreatedAt, ev.UpdatedAt)
	}
	if ev.Title != "Team Meeting" || ev.Date != "2025-11-15" || ev.Time != "14:30" || ev.City != "Tokyo" {
		t.Errorf("fields not copied: %+v", ev)
	}
	if backend.Saves() != 1 {
		t.Errorf("expected 1 save, got %d", backend.Saves())
	}

	data, err := backend.Load(ctx, storage.EventsKey)
	if err != nil {
		t.Fatalf("slot not written: %v", err)
	}
	var stored []model.CalendarEvent
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("slot not JSON: %v", err)
	}
	if len(stored) != 1 || stored[0].Title != "Team Meeting" {
		t.Errorf("unexpected slot content: %s", data)
	}
}

func TestCreateGeneratesDistinctIDs(t *testing.T) {
	repo, _ := newTestEvents(t)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		ev, err := repo.Create(context.Background(), input("Event", "2025-11-15", "10:00"))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[ev.ID] {
			t.Fatalf("duplicate id %s after %d creates", ev.ID, i)
		}
		seen[ev.ID] = true
	}
}

func TestCreateValidation(t *testing.T) {
	repo, backend := newTestEvents(t)

	tests := []struct {
		name  string
		in    model.CreateEventInput
		field string
	}{
		{"title too long", input(strings.Repeat("A", 31), "2025-11-15", "10:00"), "title"},
		{"blank title", input("   ", "2025-11-15", "10:00"), "title"},
		{"bad date", input("Ok", "2025-02-30", "10:00"), "date"},
		{"bad time", input("Ok", "2025-11-15", "25:00"), "time"},
		{"short time", input("Ok", "2025-11-15", "9:00"), "time"},
		{"bad color", func() model.CreateEventInput {
			in := input("Ok", "2025-11-15", "10:00")
			in.Color = "pink"
			return in
		}(), "color"},
		{"missing city", func() model.CreateEventInput {
			in := input("Ok", "2025-11-15", "10:00")
			in.City = ""
			return in
		}(), "city"},
		{"bad weather type", func() model.CreateEventInput {
			in := input("Ok", "2025-11-15", "10:00")
			in.Weather = &model.Weather{Type: "foggy"}
			return in
		}(), "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Create(context.Background(), tt.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected field %q in %v", tt.field, verr.Fields)
			}
		})
	}

	if repo.Count() != 0 || backend.Saves() != 0 {
		t.Errorf("rejected input must not mutate or persist (count=%d saves=%d)", repo.Count(), backend.Saves())
	}

	// Exactly 30 characters, including multi-byte ones, is accepted.
	if _, err := repo.Create(context.Background(), input(strings.Repeat("é", 30), "2025-11-15", "10:00")); err != nil {
		t.Errorf("30-character title rejected: %v", err)
	}
}

func TestUpdateUnknownIDLeavesSlotUntouched(t *testing.T) {
	repo, backend := newTestEvents(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, input("Keep", "2025-11-15", "10:00")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	before, _ := backend.Load(ctx, storage.EventsKey)
	beforeMem, _ := repo.Snapshot()
	saves := backend.Saves()

	_, ok, err := repo.Update(ctx, model.UpdateEventInput{ID: "missing", Title: ptr("Changed")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok {
		t.Fatal("expected not-found for unknown id")
	}

	after, _ := backend.Load(ctx, storage.EventsKey)
	afterMem, _ := repo.Snapshot()
	if !bytes.Equal(before, after) || !bytes.Equal(beforeMem, afterMem) {
		t.Error("collection changed on unknown-id update")
	}
	if backend.Saves() != saves {
		t.Error("unknown-id update must not persist")
	}
}

func TestUpdateMergesProvidedFields(t *testing.T) {
	repo, _ := newTestEvents(t)
	ctx := context.Background()

	orig, err := repo.Create(ctx, input("Standup", "2025-11-15", "09:00"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, ok, err := repo.Update(ctx, model.UpdateEventInput{
		ID:      orig.ID,
		Time:    ptr("09:30"),
		Color:   ptr(model.ColorRed),
		Weather: &model.Weather{Type: model.WeatherRainy, TemperatureMax: 15, TemperatureMin: 10, WeatherCode: 61},
	})
	if err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}

	if updated.ID != orig.ID || !updated.CreatedAt.Equal(orig.CreatedAt) {
		t.Error("id and createdAt must be preserved")
	}
	if updated.UpdatedAt.Before(orig.UpdatedAt) {
		t.Error("updatedAt went backwards")
	}
	if updated.Time != "09:30" || updated.Color != model.ColorRed || updated.Weather == nil || updated.Weather.Type != model.WeatherRainy {
		t.Errorf("provided fields not applied: %+v", updated)
	}
	if updated.Title != "Standup" || updated.Date != "2025-11-15" || updated.City != "Tokyo" || updated.Calendar != "work" {
		t.Errorf("omitted fields changed: %+v", updated)
	}

	got, _ := repo.ByID(orig.ID)
	if !reflect.DeepEqual(got, updated) {
		t.Errorf("stored %+v != returned %+v", got, updated)
	}
}

func TestUpdateRejectsEmptyTitle(t *testing.T) {
	repo, _ := newTestEvents(t)
	ev, _ := repo.Create(context.Background(), input("Title", "2025-11-15", "09:00"))

	_, _, err := repo.Update(context.Background(), model.UpdateEventInput{ID: ev.ID, Title: ptr("")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDeleteByIDAndDate(t *testing.T) {
	repo, backend := newTestEvents(t)
	ctx := context.Background()

	a, _ := repo.Create(ctx, input("A", "2025-11-14", "09:00"))
	repo.Create(ctx, input("B", "2025-11-15", "09:00"))
	repo.Create(ctx, input("C", "2025-11-15", "11:00"))
	repo.Create(ctx, input("D", "2025-11-16", "09:00"))
	saves := backend.Saves()

	removed, err := repo.DeleteByID(ctx, "nope")
	if err != nil || removed {
		t.Fatalf("DeleteByID unknown: removed=%v err=%v", removed, err)
	}
	if backend.Saves() != saves {
		t.Error("no-op delete must not persist")
	}

	n, err := repo.DeleteByDate(ctx, "2025-11-15")
	if err != nil || n != 2 {
		t.Fatalf("DeleteByDate = %d, %v; want 2", n, err)
	}
	if len(repo.ByDate("2025-11-14")) != 1 || len(repo.ByDate("2025-11-16")) != 1 {
		t.Error("adjacent dates must be untouched")
	}

	saves = backend.Saves()
	if n, _ := repo.DeleteByDate(ctx, "2025-11-15"); n != 0 || backend.Saves() != saves {
		t.Error("empty DeleteByDate must return 0 without persisting")
	}

	removed, err = repo.DeleteByID(ctx, a.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteByID: removed=%v err=%v", removed, err)
	}
	if repo.Count() != 1 {
		t.Errorf("expected 1 event left, got %d", repo.Count())
	}
}

func TestClearAllPersistsUnconditionally(t *testing.T) {
	repo, backend := newTestEvents(t)
	ctx := context.Background()

	if err := repo.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if backend.Saves() != 1 {
		t.Errorf("expected ClearAll on empty repo to persist, saves=%d", backend.Saves())
	}
	data, _ := backend.Load(ctx, storage.EventsKey)
	if string(data) != "[]" {
		t.Errorf("expected '[]', got %q", data)
	}
}

func TestByDateSortsByTime(t *testing.T) {
	repo, _ := newTestEvents(t)
	ctx := context.Background()

	repo.Create(ctx, input("Lunch", "2025-11-15", "12:00"))
	repo.Create(ctx, input("Client Call", "2025-11-15", "15:30"))
	repo.Create(ctx, input("Morning", "2025-11-15", "09:00"))
	repo.Create(ctx, input("Other day", "2025-11-16", "08:00"))

	got := repo.ByDate("2025-11-15")
	want := []string{"Morning", "Lunch", "Client Call"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, title := range want {
		if got[i].Title != title {
			t.Errorf("position %d = %q, want %q", i, got[i].Title, title)
		}
	}
}

func TestVisibleByDate(t *testing.T) {
	repo, _ := newTestEvents(t)
	ctx := context.Background()

	work := input("Work", "2025-11-15", "09:00")
	personal := input("Personal", "2025-11-15", "10:00")
	personal.Calendar = "personal"
	repo.Create(ctx, work)
	repo.Create(ctx, personal)

	got := repo.VisibleByDate("2025-11-15", []string{"personal"})
	if len(got) != 1 || got[0].Title != "Personal" {
		t.Errorf("unexpected visible events: %+v", got)
	}
	if len(repo.VisibleByDate("2025-11-15", nil)) != 0 {
		t.Error("no visible calendars should yield no events")
	}
}

func TestReturnedEventsAreCopies(t *testing.T) {
	repo, _ := newTestEvents(t)
	in := input("Trip", "2025-11-15", "09:00")
	in.CityLocation = &model.CityLocation{Name: "Seattle", Latitude: 47.6062, Longitude: -122.3321}
	ev, _ := repo.Create(context.Background(), in)

	in.CityLocation.Name = "mutated input"
	ev.CityLocation.Name = "mutated output"

	got, _ := repo.ByID(ev.ID)
	if got.CityLocation.Name != "Seattle" {
		t.Errorf("stored event shares memory with caller: %q", got.CityLocation.Name)
	}
}

func TestPersistReloadRoundTrip(t *testing.T) {
	repo, backend := newTestEvents(t)
	ctx := context.Background()

	a, _ := repo.Create(ctx, input("A", "2025-11-15", "09:00"))
	in := input("B", "2025-11-16", "10:00")
	in.CityLocation = &model.CityLocation{Name: "San Francisco", Latitude: 37.7749, Longitude: -122.4194, Country: "United States", CountryCode: "US", Admin1: "California", Timezone: "America/Los_Angeles"}
	b, _ := repo.Create(ctx, in)
	repo.Create(ctx, input("C", "2025-11-17", "11:00"))
	repo.Update(ctx, model.UpdateEventInput{ID: b.ID, Title: ptr("B2")})
	repo.DeleteByID(ctx, a.ID)

	reloaded := NewEvents(backend)
	status, err := reloaded.Load(ctx)
	if err != nil || status != LoadRestored {
		t.Fatalf("Load: status=%v err=%v", status, err)
	}
	if !reflect.DeepEqual(repo.All(), reloaded.All()) {
		t.Errorf("reloaded collection differs:\n%+v\n%+v", repo.All(), reloaded.All())
	}
}

func TestLoadStatuses(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()

	repo := NewEvents(backend)
	if status, err := repo.Load(ctx); err != nil || status != LoadFresh {
		t.Fatalf("absent slot: status=%v err=%v", status, err)
	}

	backend.Save(ctx, storage.EventsKey, []byte("{not json"))
	status, err := repo.Load(ctx)
	var corrupt *CorruptSlotError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected *CorruptSlotError, got %v", err)
	}
	if status != LoadFresh || repo.Count() != 0 {
		t.Error("corrupt slot should leave an empty collection")
	}
}

func TestPersistFailureKeepsMutation(t *testing.T) {
	repo, backend := newTestEvents(t)
	backend.SaveErr = errors.New("quota exceeded")

	ev, err := repo.Create(context.Background(), input("Offline", "2025-11-15", "09:00"))
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if _, ok := repo.ByID(ev.ID); !ok {
		t.Error("event should stay in memory after a failed save")
	}
}

func TestUpsertKeepsCreatedAt(t *testing.T) {
	repo, _ := newTestEvents(t)
	ctx := context.Background()

	first, created, err := repo.Upsert(ctx, "ics-1", input("Imported", "2025-11-20", "08:00"))
	if err != nil || !created {
		t.Fatalf("Upsert create: created=%v err=%v", created, err)
	}
	second, created, err := repo.Upsert(ctx, "ics-1", input("Imported v2", "2025-11-21", "08:00"))
	if err != nil || created {
		t.Fatalf("Upsert replace: created=%v err=%v", created, err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) || second.Title != "Imported v2" {
		t.Errorf("unexpected upsert result %+v", second)
	}
	if repo.Count() != 1 {
		t.Errorf("expected 1 event, got %d", repo.Count())
	}
}

func TestUpsertSkipsUnchanged(t *testing.T) {
	repo, backend := newTestEvents(t)
	ctx := context.Background()

	first, _, err := repo.Upsert(ctx, "ics-1", input("Imported", "2025-11-20", "08:00"))
	if err != nil {
		t.Fatal(err)
	}
	saves := backend.Saves()

	again, created, err := repo.Upsert(ctx, "ics-1", input("Imported", "2025-11-20", "08:00"))
	if err != nil || created {
		t.Fatalf("Upsert same: created=%v err=%v", created, err)
	}
	if !again.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("updatedAt moved from %s to %s", first.UpdatedAt, again.UpdatedAt)
	}
	if backend.Saves() != saves {
		t.Errorf("unchanged upsert wrote the slot")
	}

	in := input("Imported", "2025-11-20", "08:00")
	in.Weather = &model.Weather{Type: model.WeatherSunny, TemperatureMax: 20}
	changed, _, err := repo.Upsert(ctx, "ics-1", in)
	if err != nil || !changed.UpdatedAt.After(first.UpdatedAt) || backend.Saves() != saves+1 {
		t.Errorf("weather change not applied: %+v saves=%d err=%v", changed, backend.Saves(), err)
	}
}

func TestUpsertManyPersistsOnce(t *testing.T) {
	repo, backend := newTestEvents(t)
	ctx := context.Background()

	items := []UpsertItem{
		{ID: "ics-a", Input: input("Standup", "2025-11-20", "09:00")},
		{ID: "ics-b", Input: input("Review", "2025-11-21", "14:00")},
		{ID: "ics-c", Input: input("Retro", "2025-11-22", "16:00")},
	}
	saves := backend.Saves()
	res, err := repo.UpsertMany(ctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if res != (UpsertResult{Created: 3}) {
		t.Errorf("first batch = %+v", res)
	}
	if backend.Saves() != saves+1 {
		t.Errorf("saves = %d, want %d", backend.Saves(), saves+1)
	}
	before, _ := repo.ByID("ics-a")

	items[1].Input.Title = "Design review"
	res, err = repo.UpsertMany(ctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if res != (UpsertResult{Updated: 1, Unchanged: 2}) {
		t.Errorf("second batch = %+v", res)
	}
	if after, _ := repo.ByID("ics-a"); !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("unchanged event touched: %s -> %s", before.UpdatedAt, after.UpdatedAt)
	}

	saves = backend.Saves()
	if res, err = repo.UpsertMany(ctx, items); err != nil || res.Unchanged != 3 {
		t.Fatalf("third batch = %+v, %v", res, err)
	}
	if backend.Saves() != saves {
		t.Error("unchanged batch wrote the slot")
	}

	bad := []UpsertItem{
		{ID: "", Input: input("No id", "2025-11-23", "10:00")},
		{ID: "ics-d", Input: input("Planning", "2025-11-23", "10:00")},
	}
	res, err = repo.UpsertMany(ctx, bad)
	var verr *ValidationError
	if !errors.As(err, &verr) || res.Created != 1 {
		t.Errorf("mixed batch = %+v, %v", res, err)
	}
	if repo.Count() != 4 {
		t.Errorf("count = %d, want 4", repo.Count())
	}
}

func TestInRange(t *testing.T) {
	repo, _ := newTestEvents(t)
	ctx := context.Background()
	repo.Create(ctx, input("Late", "2025-11-02", "18:00"))
	repo.Create(ctx, input("Outside", "2025-12-01", "08:00"))
	repo.Create(ctx, input("Early", "2025-11-02", "07:00"))
	repo.Create(ctx, input("First", "2025-11-01", "23:00"))

	got := repo.InRange("2025-11-01", "2025-11-30")
	titles := make([]string, 0, len(got))
	for _, ev := range got {
		titles = append(titles, ev.Title)
	}
	if strings.Join(titles, ",") != "First,Early,Late" {
		t.Errorf("InRange order = %v", titles)
	}
}
