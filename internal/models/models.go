package models

import "time"

type Location struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	URL     string  `json:"url"`
}

type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

type CurrentWeather struct {
	TempC       float64   `json:"temp_c"`
	FeelsLikeC  float64   `json:"feelslike_c"`
	Condition   Condition `json:"condition"`
	WindKph     float64   `json:"wind_kph"`
	Humidity    float64   `json:"humidity"`
	IsDay       bool      `json:"is_day"`
	LastUpdated string    `json:"last_updated"`
}

type Astro struct {
	Sunrise  string `json:"sunrise"`
	Sunset   string `json:"sunset"`
	Moonrise string `json:"moonrise"`
	Moonset  string `json:"moonset"`
}

type DaySummary struct {
	AvgTempC  float64   `json:"avgtemp_c"`
	MaxTempC  float64   `json:"maxtemp_c"`
	MinTempC  float64   `json:"mintemp_c"`
	Condition Condition `json:"condition"`
}

type DayForecast struct {
	Date  string     `json:"date"`
	Astro Astro      `json:"astro"`
	Day   DaySummary `json:"day"`
}

// Weekday returns the English weekday name of the forecast date, or "" if the
// date does not parse.
func (d DayForecast) Weekday() string {
	t, err := time.Parse("2006-01-02", d.Date)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

type WeatherSnapshot struct {
	Location Location       `json:"location"`
	Current  CurrentWeather `json:"current"`
	Forecast []DayForecast  `json:"forecast"`
}

func (w WeatherSnapshot) Empty() bool {
	return w.Location.Name == "" && len(w.Forecast) == 0
}

// Sunrise of the first forecast day, as shown next to wind and humidity.
func (w WeatherSnapshot) Sunrise() string {
	if len(w.Forecast) == 0 {
		return ""
	}
	return w.Forecast[0].Astro.Sunrise
}

// Clone returns a copy that shares no slices with w.
func (w WeatherSnapshot) Clone() WeatherSnapshot {
	out := w
	if w.Forecast != nil {
		out.Forecast = append([]DayForecast(nil), w.Forecast...)
	}
	return out
}
