package weatherapi

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/models"

	"github.com/goccy/go-json"
	"resty.dev/v3"
)

const (
	DefaultBaseURL = "https://api.weatherapi.com/v1"
	DefaultTimeout = 10 * time.Second
)

type Client struct {
	apiKey  string
	timeout time.Duration
	http    *resty.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.http.SetBaseURL(strings.TrimRight(u, "/"))
		}
	}
}

// WithTimeout bounds every upstream call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  strings.TrimSpace(apiKey),
		timeout: DefaultTimeout,
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetTimeout(c.timeout)
	return c
}

// Mock reports whether the client serves built-in sample data because no API
// key is configured.
func (c *Client) Mock() bool { return c.apiKey == "" }

func (c *Client) Close() error { return c.http.Close() }

type searchResult struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	URL     string  `json:"url"`
}

// SearchLocations returns the locations whose name matches partialName. Blank
// input yields an empty result without contacting the API.
func (c *Client) SearchLocations(ctx context.Context, partialName string) ([]models.Location, error) {
	q := strings.TrimSpace(partialName)
	if q == "" {
		return []models.Location{}, nil
	}
	if c.Mock() {
		return mockSearchLocations(q), nil
	}

	var results []searchResult
	if err := c.get(ctx, "search", "/search.json", map[string]string{"q": q}, &results); err != nil {
		return nil, err
	}

	locations := make([]models.Location, len(results))
	for i, r := range results {
		locations[i] = models.Location{ID: r.ID, Name: r.Name, Region: r.Region, Country: r.Country, Lat: r.Lat, Lon: r.Lon, URL: r.URL}
	}
	return locations, nil
}

type wireCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

func (w wireCondition) model() models.Condition {
	return models.Condition{Text: w.Text, Icon: w.Icon, Code: w.Code}
}

type forecastResponse struct {
	Location searchResult `json:"location"`
	Current  struct {
		LastUpdated string        `json:"last_updated"`
		TempC       float64       `json:"temp_c"`
		FeelsLikeC  float64       `json:"feelslike_c"`
		IsDay       int           `json:"is_day"`
		Condition   wireCondition `json:"condition"`
		WindKph     float64       `json:"wind_kph"`
		Humidity    float64       `json:"humidity"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempC  float64       `json:"maxtemp_c"`
				MinTempC  float64       `json:"mintemp_c"`
				AvgTempC  float64       `json:"avgtemp_c"`
				Condition wireCondition `json:"condition"`
			} `json:"day"`
			Astro models.Astro `json:"astro"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// FetchForecast returns current conditions plus a days-long daily forecast for
// cityName. The forecast is cut to days entries when upstream sends more.
func (c *Client) FetchForecast(ctx context.Context, cityName string, days int) (models.WeatherSnapshot, error) {
	city := strings.TrimSpace(cityName)
	if city == "" {
		return models.WeatherSnapshot{}, &Error{Kind: KindInvalidRequest, Op: "forecast", Message: "city name is required"}
	}
	if days <= 0 {
		return models.WeatherSnapshot{}, &Error{Kind: KindInvalidRequest, Op: "forecast", Message: "days must be positive"}
	}
	if c.Mock() {
		return mockForecast(city, days, time.Now()), nil
	}

	var raw forecastResponse
	params := map[string]string{
		"q":      city,
		"days":   strconv.Itoa(days),
		"aqi":    "no",
		"alerts": "no",
	}
	if err := c.get(ctx, "forecast", "/forecast.json", params, &raw); err != nil {
		return models.WeatherSnapshot{}, err
	}

	out := models.WeatherSnapshot{
		Location: models.Location{
			ID: raw.Location.ID, Name: raw.Location.Name, Region: raw.Location.Region,
			Country: raw.Location.Country, Lat: raw.Location.Lat, Lon: raw.Location.Lon, URL: raw.Location.URL,
		},
		Current: models.CurrentWeather{
			TempC:       raw.Current.TempC,
			FeelsLikeC:  raw.Current.FeelsLikeC,
			Condition:   raw.Current.Condition.model(),
			WindKph:     raw.Current.WindKph,
			Humidity:    raw.Current.Humidity,
			IsDay:       raw.Current.IsDay == 1,
			LastUpdated: raw.Current.LastUpdated,
		},
		Forecast: make([]models.DayForecast, 0, days),
	}
	for _, d := range raw.Forecast.ForecastDay {
		if len(out.Forecast) == days {
			break
		}
		out.Forecast = append(out.Forecast, models.DayForecast{
			Date:  d.Date,
			Astro: d.Astro,
			Day: models.DaySummary{
				AvgTempC:  d.Day.AvgTempC,
				MaxTempC:  d.Day.MaxTempC,
				MinTempC:  d.Day.MinTempC,
				Condition: d.Day.Condition.model(),
			},
		})
	}
	if len(out.Forecast) < days {
		// The free plan caps forecasts at three days.
		slog.Warn("forecast shorter than requested", "city", city, "requested", days, "got", len(out.Forecast))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, op, path string, params map[string]string, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() { observe(op, start, err) }()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return transportError(op, err)
	}
	body := resp.Bytes()
	if resp.IsError() {
		var apiErr apiErrorBody
		_ = json.Unmarshal(body, &apiErr)
		return statusError(op, resp.StatusCode(), apiErr)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return nil
}
