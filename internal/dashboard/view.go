package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/access"
	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/metrics"
)

// Category filter values accepted by SetCategory.
const (
	FilterAll      = "all"
	FilterAcademic = string(calendar.CategoryAcademic)
	FilterEvent    = string(calendar.CategoryEvent)
)

// reloadTimeout bounds the background refetch triggered by a user change.
const reloadTimeout = 30 * time.Second

// Deps configures the views created for a process.
type Deps struct {
	Backend    Backend
	Normalizer *calendar.Normalizer
	WeekStart  time.Weekday
	Location   *time.Location
	BaseURL    string
	ShareTTL   time.Duration
	Now        func() time.Time
	Logger     zerolog.Logger
	// OnStale, when set, is called for every discarded response.
	OnStale func(StaleEvent)
}

// StaleEvent describes a backend response that arrived after the state it
// was requested for had been superseded.
type StaleEvent struct {
	Kind       string // "events" or "catalog"
	Generation uint64 // generation the request was issued under
	Current    uint64 // generation at arrival; zero once the view is closed
	CalendarID string
}

// View is the dashboard state of one browser session. All exported methods
// are safe for concurrent use; backend calls happen outside the lock.
type View struct {
	session     *Session
	backend     Backend
	norm        *calendar.Normalizer
	fetcher     *Fetcher
	coord       *Coordinator
	shares      *ShareIssuer
	loc         *time.Location
	now         func() time.Time
	log         zerolog.Logger
	onStale     func(StaleEvent)
	unsubscribe func()

	mu           sync.Mutex
	user         *calendar.User
	allCalendars []calendar.Calendar
	eventTypes   []calendar.EventType
	visible      []calendar.Calendar
	active       *calendar.Calendar
	anchor       time.Time
	mode         calendar.ViewMode
	category     string
	highlighted  map[string]bool
	events       []calendar.Event
	rng          calendar.Range
	degraded     bool
	lastErr      string
	loaded       bool
	loading      int
	saving       int
	generation   uint64
	catalogGen   uint64
	closed       bool
}

// NewView binds a dashboard to session. Call Close when the session ends.
func NewView(session *Session, deps Deps) *View {
	norm := deps.Normalizer
	if norm == nil {
		norm = calendar.NewNormalizer()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	v := &View{
		session:     session,
		backend:     deps.Backend,
		norm:        norm,
		fetcher:     NewFetcher(deps.Backend, norm, deps.WeekStart, deps.Logger),
		coord:       NewCoordinator(deps.Backend, norm),
		shares:      NewShareIssuer(deps.Backend, deps.BaseURL, deps.ShareTTL),
		loc:         loc,
		now:         now,
		log:         deps.Logger.With().Str("session_id", session.ID()).Logger(),
		onStale:     deps.OnStale,
		user:        session.User(),
		anchor:      now().In(loc),
		mode:        calendar.ViewMonth,
		category:    FilterAll,
		highlighted: map[string]bool{},
		events:      []calendar.Event{},
	}
	v.unsubscribe = session.Subscribe(v.userChanged)
	return v
}

// Loaded reports whether the calendar catalog has been fetched at least once.
func (v *View) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// EnsureLoaded performs the initial load once.
func (v *View) EnsureLoaded(ctx context.Context) error {
	if v.Loaded() {
		return nil
	}
	return v.Refresh(ctx)
}

// Refresh replaces calendars and event types wholesale, recomputes visibility
// from the latest user and refetches the event window.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return calendar.ErrAuthenticationRequired
	}
	v.catalogGen++
	gen := v.catalogGen
	v.loading++
	v.mu.Unlock()

	cals, types, err := v.loadCatalog(ctx)

	v.mu.Lock()
	v.loading--
	if v.closed || gen != v.catalogGen {
		current := v.catalogGen
		if v.closed {
			current = 0
		}
		v.mu.Unlock()
		v.reportStale(StaleEvent{Kind: "catalog", Generation: gen, Current: current})
		return nil
	}
	if err != nil {
		v.lastErr = err.Error()
		v.mu.Unlock()
		return err
	}
	v.allCalendars = cals
	v.eventTypes = types
	v.loaded = true
	v.applyVisibilityLocked()
	v.mu.Unlock()

	return v.fetch(ctx)
}

func (v *View) loadCatalog(ctx context.Context) ([]calendar.Calendar, []calendar.EventType, error) {
	calRecs, err := v.backend.ListCalendars(ctx)
	if err != nil {
		return nil, nil, calendar.AsProviderError("list calendars", err)
	}
	typeRecs, err := v.backend.ListEventTypes(ctx)
	if err != nil {
		return nil, nil, calendar.AsProviderError("list event types", err)
	}
	cals, err := v.norm.Calendars(calRecs)
	if err != nil {
		return nil, nil, err
	}
	types, err := v.norm.EventTypes(typeRecs)
	if err != nil {
		return nil, nil, err
	}
	return cals, types, nil
}

// SelectCalendar makes a visible calendar active and fetches its window.
func (v *View) SelectCalendar(ctx context.Context, calendarID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return calendar.ErrAuthenticationRequired
	}
	idx := indexOf(v.visible, calendarID)
	if idx < 0 {
		v.mu.Unlock()
		return fmt.Errorf("calendar %s: %w", calendarID, calendar.ErrNotFound)
	}
	v.active = &v.visible[idx]
	v.generation++
	v.mu.Unlock()

	return v.fetch(ctx)
}

// Navigate moves the anchor date and/or switches the view mode.
func (v *View) Navigate(ctx context.Context, anchor *time.Time, mode *calendar.ViewMode) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return calendar.ErrAuthenticationRequired
	}
	if anchor != nil {
		v.anchor = anchor.In(v.loc)
	}
	if mode != nil {
		v.mode = *mode
	}
	v.generation++
	v.mu.Unlock()

	return v.fetch(ctx)
}

// SetHighlighted replaces the set of highlighted event type ids.
func (v *View) SetHighlighted(ids []string) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	v.mu.Lock()
	v.highlighted = set
	v.mu.Unlock()
}

// SetCategory narrows the listed calendars and event types.
func (v *View) SetCategory(category string) error {
	switch category {
	case "":
		category = FilterAll
	case FilterAll, FilterAcademic, FilterEvent:
	default:
		return fmt.Errorf("%w: unknown category filter %q", calendar.ErrInvalidDraft, category)
	}
	v.mu.Lock()
	v.category = category
	v.mu.Unlock()
	return nil
}

// CreateEvent creates an event in a visible calendar and refetches the window.
func (v *View) CreateEvent(ctx context.Context, draft calendar.Draft) (calendar.Event, error) {
	u, done, err := v.beginSave(access.OpCreate, func() error {
		if draft.CalendarID != "" && indexOf(v.visible, draft.CalendarID) < 0 {
			return fmt.Errorf("calendar %s: %w", draft.CalendarID, calendar.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return calendar.Event{}, err
	}
	defer done()

	ev, err := v.coord.Create(ctx, u, draft)
	if err != nil {
		v.recordError(err)
		return ev, err
	}
	v.refetchAfterMutation(ctx)
	return ev, nil
}

// UpdateEvent applies a sparse patch to a loaded event.
func (v *View) UpdateEvent(ctx context.Context, id string, patch calendar.Patch) (calendar.Event, error) {
	u, done, err := v.beginSave(access.OpEdit, v.requireLoadedEvent(id))
	if err != nil {
		return calendar.Event{}, err
	}
	defer done()

	ev, err := v.coord.Update(ctx, u, id, patch)
	if err != nil {
		v.recordError(err)
		return ev, err
	}
	v.refetchAfterMutation(ctx)
	return ev, nil
}

// MoveEvent applies a drag-and-drop result.
func (v *View) MoveEvent(ctx context.Context, id string, start, end time.Time) (calendar.Event, error) {
	return v.reschedule(ctx, id, start, end, v.coord.Move)
}

// ResizeEvent applies a resize gesture result.
func (v *View) ResizeEvent(ctx context.Context, id string, start, end time.Time) (calendar.Event, error) {
	return v.reschedule(ctx, id, start, end, v.coord.Resize)
}

type rescheduleFunc func(ctx context.Context, u *calendar.User, id string, start, end time.Time) (calendar.Event, error)

func (v *View) reschedule(ctx context.Context, id string, start, end time.Time, fn rescheduleFunc) (calendar.Event, error) {
	u, done, err := v.beginSave(access.OpEdit, v.requireLoadedEvent(id))
	if err != nil {
		return calendar.Event{}, err
	}
	defer done()

	ev, err := fn(ctx, u, id, start, end)
	if err != nil {
		v.recordError(err)
		return ev, err
	}
	v.refetchAfterMutation(ctx)
	return ev, nil
}

// DeleteEvent removes a loaded event and refetches the window.
func (v *View) DeleteEvent(ctx context.Context, id string) error {
	u, done, err := v.beginSave(access.OpDelete, v.requireLoadedEvent(id))
	if err != nil {
		return err
	}
	defer done()

	if err := v.coord.Delete(ctx, u, id); err != nil {
		v.recordError(err)
		return err
	}
	v.refetchAfterMutation(ctx)
	return nil
}

// CreateShareLink mints a share link for a visible calendar.
func (v *View) CreateShareLink(ctx context.Context, calendarID string) (string, error) {
	v.mu.Lock()
	closed, u, idx := v.closed, cloneUser(v.user), indexOf(v.visible, calendarID)
	v.mu.Unlock()

	if closed || u == nil {
		return "", calendar.ErrAuthenticationRequired
	}
	if caps, err := access.For(u); err == nil && caps.CanShare && idx < 0 {
		return "", fmt.Errorf("calendar %s: %w", calendarID, calendar.ErrNotFound)
	}
	return v.shares.CreateShareLink(ctx, u, calendarID)
}

// Close detaches the view from its session. In-flight requests complete but
// no longer change state.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.generation++
	v.mu.Unlock()
	v.unsubscribe()
}

// Closed reports whether Close has been called.
func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// EventView is an event together with its display colouring.
type EventView struct {
	calendar.Event
	Display Display `json:"display"`
}

// Snapshot is the state handed to the rendering surface.
type Snapshot struct {
	User           *calendar.User       `json:"user"`
	Capabilities   access.Capabilities  `json:"capabilities"`
	Calendars      []calendar.Calendar  `json:"calendars"`
	EventTypes     []calendar.EventType `json:"eventTypes"`
	ActiveCalendar *calendar.Calendar   `json:"activeCalendar"`
	ViewMode       calendar.ViewMode    `json:"viewMode"`
	Anchor         time.Time            `json:"anchor"`
	RangeStart     time.Time            `json:"rangeStart"`
	RangeEnd       time.Time            `json:"rangeEnd"`
	Category       string               `json:"category"`
	Highlighted    []string             `json:"highlighted"`
	Events         []EventView          `json:"events"`
	Loading        bool                 `json:"loading"`
	Saving         bool                 `json:"saving"`
	Degraded       bool                 `json:"degraded"`
	Error          string               `json:"error,omitempty"`
}

// Snapshot copies the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	caps, _ := access.For(v.user)
	types := make(map[string]calendar.EventType, len(v.eventTypes))
	for _, t := range v.eventTypes {
		types[t.ID] = t
	}

	events := make([]EventView, 0, len(v.events))
	for _, ev := range v.events {
		events = append(events, EventView{Event: ev, Display: DisplayFor(ev, types, v.highlighted)})
	}

	highlighted := make([]string, 0, len(v.highlighted))
	for id := range v.highlighted {
		highlighted = append(highlighted, id)
	}
	sort.Strings(highlighted)

	var active *calendar.Calendar
	if v.active != nil {
		c := *v.active
		active = &c
	}

	return Snapshot{
		User:           cloneUser(v.user),
		Capabilities:   caps,
		Calendars:      append([]calendar.Calendar{}, access.FilterByCategory(v.visible, v.category)...),
		EventTypes:     append([]calendar.EventType{}, access.FilterEventTypesByCategory(v.eventTypes, v.category)...),
		ActiveCalendar: active,
		ViewMode:       v.mode,
		Anchor:         v.anchor,
		RangeStart:     v.rng.Start,
		RangeEnd:       v.rng.End,
		Category:       v.category,
		Highlighted:    highlighted,
		Events:         events,
		Loading:        v.loading > 0,
		Saving:         v.saving > 0,
		Degraded:       v.degraded,
		Error:          v.lastErr,
	}
}

// fetch loads the event window for the current state. Each fetch supersedes
// the ones before it; a response that arrives after the state moved on is
// discarded.
func (v *View) fetch(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.generation++
	gen := v.generation
	var active *calendar.Calendar
	if v.active != nil {
		c := *v.active
		active = &c
	}
	anchor, mode := v.anchor, v.mode
	v.loading++
	v.mu.Unlock()

	res, err := v.fetcher.Fetch(ctx, active, anchor, mode)

	v.mu.Lock()
	v.loading--
	if v.closed || gen != v.generation {
		current := v.generation
		if v.closed {
			current = 0
		}
		v.mu.Unlock()
		stale := StaleEvent{Kind: "events", Generation: gen, Current: current}
		if active != nil {
			stale.CalendarID = active.ID
		}
		v.reportStale(stale)
		return nil
	}
	defer v.mu.Unlock()

	if err != nil {
		// The previous window stays on screen; only the error is surfaced.
		v.lastErr = err.Error()
		v.log.Error().Err(err).Msg("fetch events")
		return err
	}
	v.events = res.Events
	v.rng = res.Range
	v.degraded = res.Degraded
	v.lastErr = ""
	return nil
}

func (v *View) reportStale(ev StaleEvent) {
	metrics.StaleResponse()
	v.log.Debug().Str("kind", ev.Kind).Uint64("generation", ev.Generation).Uint64("current", ev.Current).Msg("discarded stale response")
	if v.onStale != nil {
		v.onStale(ev)
	}
}

// beginSave marks the view as saving and returns the acting user plus the
// release function. check runs under the lock, and only for users holding the
// capability for op so that refusals come from the coordinator.
func (v *View) beginSave(op access.Operation, check func() error) (*calendar.User, func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.user == nil {
		return nil, nil, calendar.ErrAuthenticationRequired
	}
	if caps, err := access.For(v.user); err == nil && caps.Allows(op) && check != nil {
		if err := check(); err != nil {
			return nil, nil, err
		}
	}
	v.saving++
	var once sync.Once
	return cloneUser(v.user), func() {
		once.Do(func() {
			v.mu.Lock()
			v.saving--
			v.mu.Unlock()
		})
	}, nil
}

func (v *View) requireLoadedEvent(id string) func() error {
	return func() error {
		for _, ev := range v.events {
			if ev.ID == id {
				return nil
			}
		}
		return fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
}

func (v *View) recordError(err error) {
	// Capability refusals are reported to the caller only.
	if errors.Is(err, calendar.ErrAuthorizationDenied) || errors.Is(err, calendar.ErrInvalidDraft) {
		return
	}
	v.mu.Lock()
	v.lastErr = err.Error()
	v.mu.Unlock()
}

func (v *View) refetchAfterMutation(ctx context.Context) {
	if err := v.fetch(ctx); err != nil {
		v.log.Warn().Err(err).Msg("refetch after mutation")
	}
}

// userChanged runs on every session user change. Visibility is recomputed
// from the new user and the latest calendar set; the window is refetched
// when the active calendar changed.
func (v *View) userChanged(u *calendar.User) {
	if u == nil {
		v.Close()
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.user = u
	changed := v.applyVisibilityLocked()
	v.mu.Unlock()

	if changed {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
			defer cancel()
			if err := v.fetch(ctx); err != nil {
				v.log.Warn().Err(err).Msg("refetch after user change")
			}
		}()
	}
}

// applyVisibilityLocked recomputes the visible calendars and reports whether
// the active calendar changed. The generation moves on in that case.
func (v *View) applyVisibilityLocked() bool {
	prev := ""
	if v.active != nil {
		prev = v.active.ID
	}
	vis := access.ComputeVisible(v.user, v.allCalendars, v.active)
	v.visible = vis.Visible
	v.active = vis.DefaultActive

	next := ""
	if v.active != nil {
		next = v.active.ID
	}
	if prev != next {
		v.generation++
		if v.active == nil {
			v.events = []calendar.Event{}
			v.degraded = false
		}
		return true
	}
	return false
}

func indexOf(cals []calendar.Calendar, id string) int {
	for i := range cals {
		if cals[i].ID == id {
			return i
		}
	}
	return -1
}
