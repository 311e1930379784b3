// Package forecast owns the weather screen state: the persisted city, the
// debounced location search and the forecast fetches that feed a renderer.
package forecast

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/debounce"
	"github.com/PetoAdam/homenavi/weather-app/internal/models"
	"github.com/PetoAdam/homenavi/weather-app/internal/prefs"
	"github.com/PetoAdam/homenavi/weather-app/internal/weatherapi"
)

var (
	ErrAlreadyMounted   = errors.New("forecast: already mounted")
	ErrNotRetryable     = errors.New("forecast: no failed fetch to retry")
	ErrNothingToRefresh = errors.New("forecast: no city to refresh")
	ErrInvalidLocation  = errors.New("forecast: location has no name")
	ErrClosed           = errors.New("forecast: orchestrator closed")
)

// HomeLocation is selected by the home button.
var HomeLocation = models.Location{
	ID: 1906565, Name: "Karachi", Region: "Sindh", Country: "Pakistan",
	Lat: 24.87, Lon: 67.05, URL: "karachi-sindh-pakistan",
}

type Source interface {
	SearchLocations(ctx context.Context, partialName string) ([]models.Location, error)
	FetchForecast(ctx context.Context, cityName string, days int) (models.WeatherSnapshot, error)
}

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// ScreenDays is the number of forecast days the screen always requests.
const ScreenDays = 7

type Options struct {
	FallbackCity   string
	Home           models.Location
	SearchDebounce time.Duration
	MinQueryLength int
	PersistTimeout time.Duration
	// Clock drives the search debouncer; nil means wall time.
	Clock debounce.Clock
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.FallbackCity) == "" {
		o.FallbackCity = HomeLocation.Name
	}
	if o.Home.Name == "" {
		if strings.EqualFold(o.FallbackCity, HomeLocation.Name) {
			o.Home = HomeLocation
		} else {
			o.Home = models.Location{Name: o.FallbackCity}
		}
	}
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = 1200 * time.Millisecond
	}
	if o.MinQueryLength <= 0 {
		o.MinQueryLength = 3
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	return o
}

type fetchRequest struct {
	city    string
	persist bool
}

type searchQuery struct {
	text  string
	epoch uint64
}

// Orchestrator sequences store reads, searches and forecast fetches. Every
// fetch and search carries a generation number; a completion whose generation
// is no longer the latest is dropped, so the newest request always wins.
type Orchestrator struct {
	source Source
	store  Store
	opts   Options
	search *debounce.Debouncer[searchQuery]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        State
	mounted      bool
	closed       bool
	fetchGen     uint64
	fetchCancel  context.CancelFunc
	lastFetch    fetchRequest
	searchGen    uint64
	searchEpoch  uint64
	searchCancel context.CancelFunc
	listeners    map[int]func(State)
	nextListener int

	persistMu  sync.Mutex
	persistSeq uint64
}

func New(source Source, store Store, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		source:    source,
		store:     store,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		listeners: map[int]func(State){},
		state: State{
			Phase:       PhaseInitializing,
			Loading:     true,
			Suggestions: []models.Location{},
			UpdatedAt:   time.Now().UTC(),
		},
	}
	var clockOpts []debounce.Option
	if opts.Clock != nil {
		clockOpts = append(clockOpts, debounce.WithClock(opts.Clock))
	}
	o.search = debounce.New(opts.SearchDebounce, o.runSearch, clockOpts...)
	return o
}

func (o *Orchestrator) Options() Options { return o.opts }

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe registers fn to receive every new state. fn is called while the
// orchestrator lock is held: it must not block or call back into o.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// Mount loads the persisted city, falling back to the configured city, and
// fetches its forecast. It returns immediately.
func (o *Orchestrator) Mount() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.mounted {
		o.mu.Unlock()
		return ErrAlreadyMounted
	}
	o.mounted = true
	if o.fetchGen != 0 {
		// A selection already owns the screen; the stored city is stale.
		city := o.lastFetch.city
		o.mu.Unlock()
		slog.Debug("mount skipped store read, selection already in progress", "city", city)
		return nil
	}
	o.state.Phase = PhaseLoading
	o.state.Loading = true
	gen := o.fetchGen
	o.notifyLocked()
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		city := o.loadCity()

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || o.fetchGen != gen {
			// A selection beat the store read; it owns the screen now.
			return
		}
		o.startFetchLocked(fetchRequest{city: city})
		o.notifyLocked()
	}()
	return nil
}

func (o *Orchestrator) loadCity() string {
	ctx, cancel := context.WithTimeout(o.ctx, o.opts.PersistTimeout)
	defer cancel()
	city, ok, err := o.store.Get(ctx, prefs.KeyCity)
	switch {
	case err != nil:
		slog.Warn("reading persisted city failed", "error", err, "fallback", o.opts.FallbackCity)
		return o.opts.FallbackCity
	case !ok || strings.TrimSpace(city) == "":
		return o.opts.FallbackCity
	default:
		return city
	}
}

// SearchInput feeds one keystroke's worth of search text. Only the last input
// of a burst is searched, once the debounce window has passed without input.
func (o *Orchestrator) SearchInput(text string) {
	o.mu.Lock()
	epoch := o.searchEpoch
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return
	}
	o.search.Call(searchQuery{text: text, epoch: epoch})
}

func (o *Orchestrator) runSearch(q searchQuery) {
	text := strings.TrimSpace(q.text)
	if len([]rune(text)) < o.opts.MinQueryLength {
		return
	}

	o.mu.Lock()
	if o.closed || q.epoch != o.searchEpoch {
		o.mu.Unlock()
		return
	}
	if o.searchCancel != nil {
		o.searchCancel()
	}
	o.searchGen++
	gen := o.searchGen
	ctx, cancel := context.WithCancel(o.ctx)
	o.searchCancel = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer cancel()
		locs, err := o.source.SearchLocations(ctx, text)
		o.finishSearch(gen, text, locs, err)
	}()
}

func (o *Orchestrator) finishSearch(gen uint64, text string, locs []models.Location, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.searchGen {
		slog.Debug("dropping stale search result", "query", text)
		return
	}
	o.searchCancel = nil
	if err != nil {
		slog.Warn("location search failed", "query", text, "error", err)
		locs = nil
	}
	o.state.Suggestions = append([]models.Location{}, locs...)
	o.notifyLocked()
}

// ToggleSearch shows or hides the search UI. Hiding it drops pending and
// in-flight searches along with their suggestions.
func (o *Orchestrator) ToggleSearch(visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.state.SearchVisible = visible
	if !visible {
		o.dropSearchLocked()
	}
	o.notifyLocked()
}

// SelectLocation hides the search UI, clears suggestions and starts fetching
// the forecast for loc. On success the city name is persisted.
func (o *Orchestrator) SelectLocation(loc models.Location) error {
	if strings.TrimSpace(loc.Name) == "" {
		return ErrInvalidLocation
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.state.SearchVisible = false
	o.dropSearchLocked()
	o.startFetchLocked(fetchRequest{city: loc.Name, persist: true})
	o.notifyLocked()
	return nil
}

func (o *Orchestrator) SelectHome() error {
	return o.SelectLocation(o.opts.Home)
}

// Retry re-issues the fetch that put the screen into the error phase.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.state.Phase != PhaseError || o.lastFetch.city == "" {
		return ErrNotRetryable
	}
	o.startFetchLocked(o.lastFetch)
	o.notifyLocked()
	return nil
}

// Refresh re-fetches the current city. It is a no-op while a fetch is in
// flight, so it never supersedes a user's selection.
func (o *Orchestrator) Refresh() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.lastFetch.city == "" {
		return ErrNothingToRefresh
	}
	if o.state.Loading {
		return nil
	}
	req := o.lastFetch
	req.persist = false
	o.startFetchLocked(req)
	o.notifyLocked()
	return nil
}

func (o *Orchestrator) dropSearchLocked() {
	o.search.Cancel()
	o.searchEpoch++
	o.searchGen++
	if o.searchCancel != nil {
		o.searchCancel()
		o.searchCancel = nil
	}
	o.state.Suggestions = []models.Location{}
}

func (o *Orchestrator) startFetchLocked(req fetchRequest) {
	if o.fetchCancel != nil {
		o.fetchCancel()
	}
	o.fetchGen++
	gen := o.fetchGen
	ctx, cancel := context.WithCancel(o.ctx)
	o.fetchCancel = cancel
	o.lastFetch = req

	o.state.Phase = PhaseLoading
	o.state.Loading = true
	o.state.Error = nil
	o.state.City = req.city

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		slog.Debug("fetching forecast", "city", req.city, "days", ScreenDays, "generation", gen)
		snap, err := o.source.FetchForecast(ctx, req.city, ScreenDays)
		o.finishFetch(gen, req, snap, err)
	}()
}

func (o *Orchestrator) finishFetch(gen uint64, req fetchRequest, snap models.WeatherSnapshot, err error) {
	o.mu.Lock()
	if o.closed || gen != o.fetchGen {
		o.mu.Unlock()
		slog.Debug("dropping stale forecast", "city", req.city, "generation", gen)
		return
	}
	o.fetchCancel = nil
	o.state.Loading = false

	if err != nil {
		kind := string(weatherapi.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		o.state.Phase = PhaseError
		o.state.Error = &StateError{Kind: kind, Message: err.Error()}
		o.notifyLocked()
		o.mu.Unlock()
		slog.Warn("forecast fetch failed", "city", req.city, "kind", kind, "error", err)
		return
	}

	w := snap.Clone()
	o.state.Phase = PhaseReady
	o.state.Weather = &w
	o.state.Error = nil
	var seq uint64
	if req.persist {
		o.persistSeq++
		seq = o.persistSeq
		o.wg.Add(1)
	}
	o.notifyLocked()
	o.mu.Unlock()

	if req.persist {
		go o.persist(seq, req.city)
	}
}

// persist writes the city in the background. Failures are logged only. A
// write that has been overtaken by a newer selection is skipped.
func (o *Orchestrator) persist(seq uint64, city string) {
	defer o.wg.Done()
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	latest := seq == o.persistSeq
	o.mu.Unlock()
	if !latest {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.PersistTimeout)
	defer cancel()
	if err := o.store.Set(ctx, prefs.KeyCity, city); err != nil {
		slog.Warn("persisting city failed", "city", city, "error", err)
		return
	}
	slog.Debug("city persisted", "city", city)
}

func (o *Orchestrator) notifyLocked() {
	o.state.UpdatedAt = time.Now().UTC()
	if len(o.listeners) == 0 {
		return
	}
	for _, fn := range o.listeners {
		fn(o.state.clone())
	}
}

// Wait blocks until every in-flight fetch, search and persist has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Close cancels in-flight work and waits for it to unwind.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.search.Cancel()
	o.cancel()
	o.wg.Wait()
}
