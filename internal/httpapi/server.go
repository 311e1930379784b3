package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/cache"
	"github.com/PetoAdam/homenavi/weather-app/internal/forecast"
	"github.com/PetoAdam/homenavi/weather-app/internal/models"
	"github.com/PetoAdam/homenavi/weather-app/internal/weatherapi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Screen is the intent surface a renderer drives.
type Screen interface {
	Snapshot() forecast.State
	SearchInput(text string)
	ToggleSearch(visible bool)
	SelectLocation(loc models.Location) error
	SelectHome() error
	Retry() error
	Refresh() error
}

const (
	maxForecastDays = 14
	maxBodyBytes    = 64 << 10
)

type Server struct {
	screen        Screen
	source        forecast.Source
	live          http.Handler
	defaultDays   int
	searchCache   *cache.Cache[[]models.Location]
	forecastCache *cache.Cache[models.WeatherSnapshot]
}

// NewServer wires the renderer endpoints. live serves the websocket stream and
// may be nil.
func NewServer(screen Screen, source forecast.Source, live http.Handler, cacheTTL time.Duration, defaultDays int) *Server {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &Server{
		screen:        screen,
		source:        source,
		live:          live,
		defaultDays:   defaultDays,
		searchCache:   cache.New[[]models.Location](cacheTTL),
		forecastCache: cache.New[models.WeatherSnapshot](cacheTTL),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/state", s.handleState)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))
		r.Post("/search", s.handleSearchInput)
		r.Post("/search/visibility", s.handleSearchVisibility)
		r.Post("/select", s.handleSelect)
		r.Post("/home", s.handleHome)
		r.Post("/retry", s.handleRetry)
		r.Post("/refresh", s.handleRefresh)
	})
	if s.live != nil {
		r.Get("/ws", s.live.ServeHTTP)
	}

	r.Get("/weather/search", s.handleSearchLocations)
	r.Get("/weather/forecast", s.handleForecast)
}

// PurgeCaches drops expired passthrough entries.
func (s *Server) PurgeCaches() error {
	n := s.searchCache.Purge() + s.forecastCache.Purge()
	if n > 0 {
		slog.Debug("purged cached weather responses", "count", n)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}

// decodeBody reads a JSON body, capped by the RequestSize middleware, into v.
// It writes the error response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, badRequest string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, badRequest)
		return false
	}
	return true
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.screen.Snapshot())
}

type searchInputRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearchInput(w http.ResponseWriter, r *http.Request) {
	var req searchInputRequest
	if !decodeBody(w, r, &req, "invalid JSON body") {
		return
	}
	s.screen.SearchInput(req.Query)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

func (s *Server) handleSearchVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	const msg = "body must be {\"visible\": bool}"
	if !decodeBody(w, r, &req, msg) {
		return
	}
	if req.Visible == nil {
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}
	s.screen.ToggleSearch(*req.Visible)
	writeJSON(w, http.StatusOK, s.screen.Snapshot())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if !decodeBody(w, r, &loc, "invalid JSON body") {
		return
	}
	s.intentResult(w, s.screen.SelectLocation(loc))
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	s.intentResult(w, s.screen.SelectHome())
}

func (s *Server) handleRetry(w http.ResponseWriter, _ *http.Request) {
	s.intentResult(w, s.screen.Retry())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.intentResult(w, s.screen.Refresh())
}

func (s *Server) intentResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.screen.Snapshot())
	case errors.Is(err, forecast.ErrInvalidLocation):
		writeJSONError(w, http.StatusBadRequest, "location name is required")
	case errors.Is(err, forecast.ErrNotRetryable), errors.Is(err, forecast.ErrNothingToRefresh):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, forecast.ErrClosed):
		writeJSONError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		slog.Error("intent failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "intent failed")
	}
}

func (s *Server) handleSearchLocations(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSONError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	key := strings.ToLower(query)
	if cached, ok := s.searchCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	locations, err := s.source.SearchLocations(r.Context(), query)
	if err != nil {
		slog.Warn("location search failed", "query", query, "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to search locations")
		return
	}

	s.searchCache.Set(key, locations)
	// Return a plain array for frontend convenience.
	writeJSON(w, http.StatusOK, locations)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		writeJSONError(w, http.StatusBadRequest, "query parameter 'city' is required")
		return
	}

	days := s.defaultDays
	if v := r.URL.Query().Get("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 || d > maxForecastDays {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxForecastDays))
			return
		}
		days = d
	}

	key := fmt.Sprintf("%s|%d", strings.ToLower(city), days)
	if cached, ok := s.forecastCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	snap, err := s.source.FetchForecast(r.Context(), city, days)
	if err != nil {
		switch weatherapi.KindOf(err) {
		case weatherapi.KindNotFound:
			writeJSONError(w, http.StatusNotFound, "city not found")
		case weatherapi.KindInvalidRequest:
			writeJSONError(w, http.StatusBadRequest, "invalid forecast request")
		default:
			slog.Warn("forecast fetch failed", "city", city, "error", err)
			writeJSONError(w, http.StatusBadGateway, "failed to fetch weather")
		}
		return
	}

	s.forecastCache.Set(key, snap)
	writeJSON(w, http.StatusOK, snap)
}
