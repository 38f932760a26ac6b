package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	appLog "journeycal/internal/log"
	"journeycal/internal/model"
	"journeycal/internal/storage"
)

// Calendars is the calendar registry: a small set of categories whose
// visibility can be toggled. It is safe for concurrent use.
type Calendars struct {
	mu        sync.RWMutex
	backend   storage.Backend
	calendars []model.Calendar
}

// NewCalendars returns a registry holding the default seed set.
func NewCalendars(backend storage.Backend) *Calendars {
	return &Calendars{
		backend:   backend,
		calendars: model.DefaultCalendars(),
	}
}

// Load restores the persisted registry. On first run the seed set is kept
// and written; on corrupt or empty content the seed set is kept in memory
// and a *CorruptSlotError is returned for corruption.
func (c *Calendars) Load(ctx context.Context) (LoadStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calendars = model.DefaultCalendars()

	data, err := c.backend.Load(ctx, storage.CalendarsKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoadFresh, c.persistLocked(ctx)
		}
		return LoadFresh, err
	}

	var cals []model.Calendar
	if err := json.Unmarshal(data, &cals); err != nil {
		return LoadFresh, &CorruptSlotError{Key: storage.CalendarsKey, Err: err}
	}
	if len(cals) == 0 {
		appLog.Warn("calendar registry slot empty; using defaults", "key", storage.CalendarsKey)
		return LoadFresh, nil
	}
	c.calendars = cals
	return LoadRestored, nil
}

// All returns every calendar in registry order.
func (c *Calendars) All() []model.Calendar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Calendar(nil), c.calendars...)
}

// Visible returns the calendars whose visibility flag is set.
func (c *Calendars) Visible() []model.Calendar {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Calendar, 0, len(c.calendars))
	for _, cal := range c.calendars {
		if cal.Visible {
			out = append(out, cal)
		}
	}
	return out
}

// VisibleIDs is Visible reduced to ids, the shape VisibleByDate expects.
func (c *Calendars) VisibleIDs() []string {
	visible := c.Visible()
	ids := make([]string, 0, len(visible))
	for _, cal := range visible {
		ids = append(ids, cal.ID)
	}
	return ids
}

func (c *Calendars) Get(id string) (model.Calendar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cal := range c.calendars {
		if cal.ID == id {
			return cal, true
		}
	}
	return model.Calendar{}, false
}

// ToggleVisibility flips the flag of id and persists the registry. Unknown
// ids are a no-op returning false.
func (c *Calendars) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.calendars {
		if c.calendars[i].ID == id {
			c.calendars[i].Visible = !c.calendars[i].Visible
			return true, c.persistLocked(ctx)
		}
	}
	return false, nil
}

func (c *Calendars) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(c.calendars)
	if err != nil {
		return &PersistError{Key: storage.CalendarsKey, Err: err}
	}
	if err := c.backend.Save(ctx, storage.CalendarsKey, data); err != nil {
		appLog.Error("calendars persist failed", err, "key", storage.CalendarsKey)
		return &PersistError{Key: storage.CalendarsKey, Err: err}
	}
	return nil
}
