package forecast

import (
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/models"
)

type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseLoading      Phase = "loading"
	PhaseReady        Phase = "ready"
	PhaseError        Phase = "error"
)

type StateError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// State is what a renderer sees. Values returned by the orchestrator are
// copies and may be kept or modified freely.
type State struct {
	Phase         Phase                   `json:"phase"`
	Loading       bool                    `json:"loading"`
	SearchVisible bool                    `json:"search_visible"`
	Suggestions   []models.Location       `json:"suggestions"`
	Weather       *models.WeatherSnapshot `json:"weather"`
	City          string                  `json:"city,omitempty"`
	Error         *StateError             `json:"error,omitempty"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func (s State) clone() State {
	out := s
	out.Suggestions = append([]models.Location{}, s.Suggestions...)
	if s.Weather != nil {
		w := s.Weather.Clone()
		out.Weather = &w
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
