package forecast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/debounce"
	"github.com/PetoAdam/homenavi/weather-app/internal/debounce/debouncetest"
	"github.com/PetoAdam/homenavi/weather-app/internal/models"
	"github.com/PetoAdam/homenavi/weather-app/internal/prefs"
	"github.com/PetoAdam/homenavi/weather-app/internal/weatherapi"
)

type fetchReply struct {
	snap models.WeatherSnapshot
	err  error
}

type fetchCall struct {
	city  string
	days  int
	reply chan fetchReply
}

// fakeSource answers immediately through the auto funcs, or hands each call
// to the test through the fetches channel when autoFetch is nil.
type fakeSource struct {
	autoFetch  func(city string, days int) (models.WeatherSnapshot, error)
	autoSearch func(q string) ([]models.Location, error)
	// ignoreCancel makes blocked fetches wait for a reply even after their
	// context is cancelled, to simulate a late response.
	ignoreCancel bool

	fetches chan fetchCall

	mu          sync.Mutex
	fetchLog    []fetchCall
	searchQuery []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{fetches: make(chan fetchCall, 16)}
}

func (f *fakeSource) SearchLocations(_ context.Context, q string) ([]models.Location, error) {
	f.mu.Lock()
	f.searchQuery = append(f.searchQuery, q)
	f.mu.Unlock()
	if f.autoSearch != nil {
		return f.autoSearch(q)
	}
	return []models.Location{{Name: q}}, nil
}

func (f *fakeSource) FetchForecast(ctx context.Context, city string, days int) (models.WeatherSnapshot, error) {
	call := fetchCall{city: city, days: days, reply: make(chan fetchReply, 1)}
	f.mu.Lock()
	f.fetchLog = append(f.fetchLog, call)
	f.mu.Unlock()
	if f.autoFetch != nil {
		return f.autoFetch(city, days)
	}
	f.fetches <- call
	if f.ignoreCancel {
		r := <-call.reply
		return r.snap, r.err
	}
	select {
	case r := <-call.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return models.WeatherSnapshot{}, ctx.Err()
	}
}

func (f *fakeSource) fetchCalls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.fetchLog...)
}

func (f *fakeSource) searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searchQuery...)
}

func (f *fakeSource) nextFetch(t *testing.T) fetchCall {
	t.Helper()
	select {
	case c := <-f.fetches:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a forecast fetch")
		return fetchCall{}
	}
}

func snapshotFor(city string, days int) models.WeatherSnapshot {
	fc := make([]models.DayForecast, days)
	for i := range fc {
		fc[i] = models.DayForecast{Date: time.Date(2024, 3, 11+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")}
	}
	return models.WeatherSnapshot{Location: models.Location{Name: city}, Forecast: fc}
}

func okFetch(city string, days int) (models.WeatherSnapshot, error) {
	return snapshotFor(city, days), nil
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unavailable")
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("store unavailable")
}

func persistedCity(t *testing.T, s *prefs.MemoryStore) (string, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), prefs.KeyCity)
	if err != nil {
		t.Fatalf("get city: %v", err)
	}
	return v, ok
}

func newTestOrchestrator(t *testing.T, src Source, store Store, clock debounce.Clock) *Orchestrator {
	t.Helper()
	o := New(src, store, Options{Clock: clock})
	t.Cleanup(o.Close)
	return o
}

func TestMountFreshInstallUsesFallbackCity(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = okFetch
	store := prefs.NewMemoryStore()
	o := newTestOrchestrator(t, src, store, nil)

	if s := o.Snapshot(); s.Phase != PhaseInitializing || !s.Loading {
		t.Fatalf("expected initializing+loading before mount, got %+v", s)
	}

	var mu sync.Mutex
	var phases []Phase
	o.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
	})

	if err := o.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	o.Wait()

	calls := src.fetchCalls()
	if len(calls) != 1 || calls[0].city != "Karachi" || calls[0].days != 7 {
		t.Fatalf("expected one fetchForecast(Karachi, 7), got %+v", calls)
	}
	s := o.Snapshot()
	if s.Phase != PhaseReady || s.Loading {
		t.Fatalf("expected ready and not loading, got %+v", s)
	}
	if s.Weather == nil || s.Weather.Location.Name != "Karachi" {
		t.Fatalf("unexpected weather %+v", s.Weather)
	}
	if _, ok := persistedCity(t, store); ok {
		t.Fatalf("mount must not persist the fallback city")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(phases) == 0 || phases[0] != PhaseLoading || phases[len(phases)-1] != PhaseReady {
		t.Fatalf("expected loading -> ready, got %v", phases)
	}

	if err := o.Mount(); !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("expected ErrAlreadyMounted, got %v", err)
	}
}

func TestMountUsesPersistedCity(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = okFetch
	store := prefs.NewMemoryStore()
	_ = store.Set(context.Background(), prefs.KeyCity, "London")
	o := newTestOrchestrator(t, src, store, nil)

	_ = o.Mount()
	o.Wait()

	calls := src.fetchCalls()
	if len(calls) != 1 || calls[0].city != "London" {
		t.Fatalf("expected fetch for London, got %+v", calls)
	}
}

func TestSelectionBeforeMountIsKept(t *testing.T) {
	src := newFakeSource()
	store := prefs.NewMemoryStore()
	o := newTestOrchestrator(t, src, store, nil)

	if err := o.SelectLocation(models.Location{Name: "London", Country: "UK"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	call := src.nextFetch(t)
	if err := o.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	call.reply <- fetchReply{snap: snapshotFor("London", 7)}
	o.Wait()

	calls := src.fetchCalls()
	if len(calls) != 1 || calls[0].city != "London" {
		t.Fatalf("mount must not replace an earlier selection, fetches %+v", calls)
	}
	s := o.Snapshot()
	if s.Phase != PhaseReady || s.Weather == nil || s.Weather.Location.Name != "London" {
		t.Fatalf("expected London on screen, got %+v", s)
	}
	if v, ok := persistedCity(t, store); !ok || v != "London" {
		t.Fatalf("expected persisted London, got %q %v", v, ok)
	}
	if err := o.Mount(); !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("expected ErrAlreadyMounted, got %v", err)
	}
}

func TestMountStoreFailureFallsBack(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = okFetch
	o := newTestOrchestrator(t, src, failingStore{}, nil)

	_ = o.Mount()
	o.Wait()

	calls := src.fetchCalls()
	if len(calls) != 1 || calls[0].city != "Karachi" {
		t.Fatalf("expected fallback fetch, got %+v", calls)
	}
	if o.Snapshot().Phase != PhaseReady {
		t.Fatalf("expected ready")
	}
}

func TestDebouncedSearchIssuesOnlyLastInput(t *testing.T) {
	clock := debouncetest.NewManualClock(time.Unix(0, 0))
	src := newFakeSource()
	o := newTestOrchestrator(t, src, prefs.NewMemoryStore(), clock)
	o.ToggleSearch(true)

	o.SearchInput("Lon")
	clock.Advance(300 * time.Millisecond)
	o.SearchInput("London")

	clock.Advance(1199 * time.Millisecond)
	o.Wait()
	if got := src.searches(); len(got) != 0 {
		t.Fatalf("searched before the debounce window: %v", got)
	}

	clock.Advance(time.Millisecond)
	o.Wait()
	got := src.searches()
	if len(got) != 1 || got[0] != "London" {
		t.Fatalf("expected only searchLocations(London), got %v", got)
	}
	s := o.Snapshot()
	if len(s.Suggestions) != 1 || s.Suggestions[0].Name != "London" {
		t.Fatalf("expected suggestions to be replaced, got %+v", s.Suggestions)
	}
}

func TestShortInputNeverSearches(t *testing.T) {
	clock := debouncetest.NewManualClock(time.Unix(0, 0))
	src := newFakeSource()
	o := newTestOrchestrator(t, src, prefs.NewMemoryStore(), clock)

	o.SearchInput("Lo")
	clock.Advance(2 * time.Second)
	o.SearchInput("  ab  ")
	clock.Advance(2 * time.Second)
	o.Wait()

	if got := src.searches(); len(got) != 0 {
		t.Fatalf("short input reached the API: %v", got)
	}
}

func TestFailedSearchClearsSuggestions(t *testing.T) {
	clock := debouncetest.NewManualClock(time.Unix(0, 0))
	src := newFakeSource()
	fail := false
	src.autoSearch = func(q string) ([]models.Location, error) {
		if fail {
			return nil, &weatherapi.Error{Kind: weatherapi.KindNetwork, Op: "search"}
		}
		return []models.Location{{Name: "Paris"}}, nil
	}
	o := newTestOrchestrator(t, src, prefs.NewMemoryStore(), clock)

	o.SearchInput("Paris")
	clock.Advance(1200 * time.Millisecond)
	o.Wait()
	if len(o.Snapshot().Suggestions) != 1 {
		t.Fatalf("expected one suggestion")
	}

	fail = true
	o.SearchInput("Pari")
	clock.Advance(1200 * time.Millisecond)
	o.Wait()
	if s := o.Snapshot(); s.Suggestions == nil || len(s.Suggestions) != 0 {
		t.Fatalf("expected empty suggestions after failed search, got %#v", s.Suggestions)
	}
}

func TestSelectLocationClearsSearchSynchronouslyAndPersists(t *testing.T) {
	clock := debouncetest.NewManualClock(time.Unix(0, 0))
	src := newFakeSource()
	store := prefs.NewMemoryStore()
	o := newTestOrchestrator(t, src, store, clock)

	o.ToggleSearch(true)
	o.SearchInput("London")
	clock.Advance(1200 * time.Millisecond)
	o.Wait()
	if len(o.Snapshot().Suggestions) == 0 {
		t.Fatalf("expected suggestions before selection")
	}

	if err := o.SelectLocation(models.Location{Name: "London", Country: "UK"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	s := o.Snapshot()
	if len(s.Suggestions) != 0 || s.SearchVisible || !s.Loading || s.Phase != PhaseLoading {
		t.Fatalf("selection must clear suggestions, hide search and start loading before the fetch resolves: %+v", s)
	}
	if _, ok := persistedCity(t, store); ok {
		t.Fatalf("city persisted before the fetch completed")
	}

	call := src.nextFetch(t)
	if call.city != "London" || call.days != 7 {
		t.Fatalf("unexpected fetch %+v", call)
	}
	call.reply <- fetchReply{snap: snapshotFor("London", 7)}
	o.Wait()

	s = o.Snapshot()
	if s.Loading || s.Phase != PhaseReady || s.Weather == nil || s.Weather.Location.Name != "London" {
		t.Fatalf("unexpected state after fetch: %+v", s)
	}
	if len(s.Weather.Forecast) != 7 {
		t.Fatalf("expected 7 forecast days, got %d", len(s.Weather.Forecast))
	}
	if v, ok := persistedCity(t, store); !ok || v != "London" {
		t.Fatalf("expected persisted London, got %q %v", v, ok)
	}
}

func TestSelectionDropsPendingSearch(t *testing.T) {
	clock := debouncetest.NewManualClock(time.Unix(0, 0))
	src := newFakeSource()
	src.autoFetch = okFetch
	o := newTestOrchestrator(t, src, prefs.NewMemoryStore(), clock)

	o.ToggleSearch(true)
	o.SearchInput("Paris")
	_ = o.SelectLocation(models.Location{Name: "Berlin"})
	clock.Advance(5 * time.Second)
	o.Wait()

	if got := src.searches(); len(got) != 0 {
		t.Fatalf("pending search survived the selection: %v", got)
	}
	if s := o.Snapshot(); len(s.Suggestions) != 0 {
		t.Fatalf("suggestions repopulated after selection: %+v", s.Suggestions)
	}
}

func TestStaleForecastIsDiscarded(t *testing.T) {
	src := newFakeSource()
	src.ignoreCancel = true
	store := prefs.NewMemoryStore()
	o := newTestOrchestrator(t, src, store, nil)

	_ = o.SelectLocation(models.Location{Name: "Paris"})
	first := src.nextFetch(t)
	_ = o.SelectLocation(models.Location{Name: "Tokyo"})
	second := src.nextFetch(t)

	second.reply <- fetchReply{snap: snapshotFor("Tokyo", 7)}
	first.reply <- fetchReply{snap: snapshotFor("Paris", 7)}
	o.Wait()

	s := o.Snapshot()
	if s.Weather == nil || s.Weather.Location.Name != "Tokyo" {
		t.Fatalf("late response overwrote newer state: %+v", s.Weather)
	}
	if v, _ := persistedCity(t, store); v != "Tokyo" {
		t.Fatalf("expected Tokyo persisted, got %q", v)
	}
}

func TestFetchFailureEntersErrorStateAndRetryRecovers(t *testing.T) {
	src := newFakeSource()
	attempts := 0
	src.autoFetch = func(city string, days int) (models.WeatherSnapshot, error) {
		attempts++
		if attempts == 1 {
			return models.WeatherSnapshot{}, &weatherapi.Error{Kind: weatherapi.KindNetwork, Op: "forecast", Err: errors.New("dial tcp: connection refused")}
		}
		return snapshotFor(city, days), nil
	}
	store := prefs.NewMemoryStore()
	o := newTestOrchestrator(t, src, store, nil)

	_ = o.SelectLocation(models.Location{Name: "London"})
	o.Wait()

	s := o.Snapshot()
	if s.Phase != PhaseError || s.Loading {
		t.Fatalf("expected error phase without loading, got %+v", s)
	}
	if s.Error == nil || s.Error.Kind != "network" {
		t.Fatalf("expected network error, got %+v", s.Error)
	}
	if _, ok := persistedCity(t, store); ok {
		t.Fatalf("failed selection must not be persisted")
	}

	if err := o.Retry(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	o.Wait()

	s = o.Snapshot()
	if s.Phase != PhaseReady || s.Error != nil || s.Weather.Location.Name != "London" {
		t.Fatalf("retry did not recover: %+v", s)
	}
	if v, _ := persistedCity(t, store); v != "London" {
		t.Fatalf("expected London persisted after retry, got %q", v)
	}
	if err := o.Retry(); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable when ready, got %v", err)
	}
}

func TestFailedMountDoesNotHang(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = func(string, int) (models.WeatherSnapshot, error) {
		return models.WeatherSnapshot{}, &weatherapi.Error{Kind: weatherapi.KindNotFound, Op: "forecast"}
	}
	o := newTestOrchestrator(t, src, prefs.NewMemoryStore(), nil)

	_ = o.Mount()
	o.Wait()

	s := o.Snapshot()
	if s.Loading || s.Phase != PhaseError || s.Error.Kind != "not_found" {
		t.Fatalf("expected error state, got %+v", s)
	}
}

func TestPersistFailureIsNotSurfaced(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = okFetch
	o := newTestOrchestrator(t, src, failingStore{}, nil)

	_ = o.SelectLocation(models.Location{Name: "Vienna"})
	o.Wait()

	if s := o.Snapshot(); s.Phase != PhaseReady || s.Error != nil {
		t.Fatalf("persist failure leaked into state: %+v", s)
	}
}

func TestSelectHome(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = okFetch
	store := prefs.NewMemoryStore()
	o := newTestOrchestrator(t, src, store, nil)

	if err := o.SelectHome(); err != nil {
		t.Fatalf("home: %v", err)
	}
	o.Wait()
	if v, _ := persistedCity(t, store); v != "Karachi" {
		t.Fatalf("expected Karachi persisted, got %q", v)
	}
}

func TestRefresh(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = okFetch
	store := prefs.NewMemoryStore()
	o := newTestOrchestrator(t, src, store, nil)

	if err := o.Refresh(); !errors.Is(err, ErrNothingToRefresh) {
		t.Fatalf("expected ErrNothingToRefresh before mount, got %v", err)
	}

	_ = o.Mount()
	o.Wait()
	if err := o.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	o.Wait()

	calls := src.fetchCalls()
	if len(calls) != 2 || calls[1].city != "Karachi" {
		t.Fatalf("expected a second Karachi fetch, got %+v", calls)
	}
	if _, ok := persistedCity(t, store); ok {
		t.Fatalf("refresh must not persist")
	}
}

func TestSelectLocationValidation(t *testing.T) {
	o := newTestOrchestrator(t, newFakeSource(), prefs.NewMemoryStore(), nil)
	if err := o.SelectLocation(models.Location{Name: "  "}); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
}

func TestHideSearchClearsSuggestions(t *testing.T) {
	clock := debouncetest.NewManualClock(time.Unix(0, 0))
	o := newTestOrchestrator(t, newFakeSource(), prefs.NewMemoryStore(), clock)

	o.ToggleSearch(true)
	o.SearchInput("Budapest")
	clock.Advance(1200 * time.Millisecond)
	o.Wait()
	if len(o.Snapshot().Suggestions) != 1 {
		t.Fatalf("expected a suggestion")
	}

	o.ToggleSearch(false)
	if s := o.Snapshot(); s.SearchVisible || len(s.Suggestions) != 0 {
		t.Fatalf("expected hidden search without suggestions, got %+v", s)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	src := newFakeSource()
	src.autoFetch = okFetch
	o := newTestOrchestrator(t, src, prefs.NewMemoryStore(), nil)
	_ = o.Mount()
	o.Wait()

	s := o.Snapshot()
	s.Weather.Forecast[0].Date = "mutated"
	if o.Snapshot().Weather.Forecast[0].Date == "mutated" {
		t.Fatalf("snapshot shares memory with orchestrator state")
	}
}

func TestClosedOrchestratorRejectsIntents(t *testing.T) {
	o := New(newFakeSource(), prefs.NewMemoryStore(), Options{})
	o.Close()
	if err := o.Mount(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := o.SelectLocation(models.Location{Name: "Oslo"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
