package weatherapi

import (
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/models"
)

var mockCities = []models.Location{
	{ID: 1906565, Name: "Karachi", Region: "Sindh", Country: "Pakistan", Lat: 24.87, Lon: 67.05, URL: "karachi-sindh-pakistan"},
	{ID: 2801268, Name: "London", Region: "City of London, Greater London", Country: "United Kingdom", Lat: 51.52, Lon: -0.11, URL: "london-city-of-london-greater-london-united-kingdom"},
	{ID: 2618724, Name: "Budapest", Region: "Budapest", Country: "Hungary", Lat: 47.5, Lon: 19.08, URL: "budapest-budapest-hungary"},
	{ID: 2796590, Name: "Berlin", Region: "Berlin", Country: "Germany", Lat: 52.52, Lon: 13.4, URL: "berlin-berlin-germany"},
	{ID: 803267, Name: "Paris", Region: "Ile-de-France", Country: "France", Lat: 48.87, Lon: 2.33, URL: "paris-ile-de-france-france"},
	{ID: 2145091, Name: "New York", Region: "New York", Country: "United States of America", Lat: 40.71, Lon: -74.01, URL: "new-york-new-york-united-states-of-america"},
	{ID: 3125553, Name: "Tokyo", Region: "Tokyo", Country: "Japan", Lat: 35.69, Lon: 139.69, URL: "tokyo-tokyo-japan"},
	{ID: 2575631, Name: "Lahore", Region: "Punjab", Country: "Pakistan", Lat: 31.55, Lon: 74.34, URL: "lahore-punjab-pakistan"},
	{ID: 2757411, Name: "Londonderry", Region: "Derry", Country: "United Kingdom", Lat: 55, Lon: -7.33, URL: "londonderry-derry-united-kingdom"},
	{ID: 609437, Name: "Sydney", Region: "New South Wales", Country: "Australia", Lat: -33.88, Lon: 151.22, URL: "sydney-new-south-wales-australia"},
}

var mockConditions = []models.Condition{
	{Text: "Sunny", Icon: "//cdn.weatherapi.com/weather/64x64/day/113.png", Code: 1000},
	{Text: "Partly cloudy", Icon: "//cdn.weatherapi.com/weather/64x64/day/116.png", Code: 1003},
	{Text: "Overcast", Icon: "//cdn.weatherapi.com/weather/64x64/day/122.png", Code: 1009},
	{Text: "Patchy rain possible", Icon: "//cdn.weatherapi.com/weather/64x64/day/176.png", Code: 1063},
}

func mockSearchLocations(query string) []models.Location {
	q := strings.ToLower(query)
	matches := []models.Location{}
	for _, city := range mockCities {
		if strings.Contains(strings.ToLower(city.Name), q) {
			matches = append(matches, city)
		}
	}
	if len(matches) > 5 {
		matches = matches[:5]
	}
	return matches
}

func mockForecast(city string, days int, now time.Time) models.WeatherSnapshot {
	loc := models.Location{Name: city}
	for _, c := range mockCities {
		if strings.EqualFold(c.Name, city) {
			loc = c
			break
		}
	}

	forecast := make([]models.DayForecast, 0, days)
	for i := 0; i < days; i++ {
		t := now.AddDate(0, 0, i)
		avg := 20 + float64((i%5)-2)
		forecast = append(forecast, models.DayForecast{
			Date:  t.Format("2006-01-02"),
			Astro: models.Astro{Sunrise: "06:12 AM", Sunset: "06:48 PM", Moonrise: "09:30 PM", Moonset: "08:05 AM"},
			Day: models.DaySummary{
				AvgTempC:  avg,
				MaxTempC:  avg + 4,
				MinTempC:  avg - 5,
				Condition: mockConditions[i%len(mockConditions)],
			},
		})
	}

	return models.WeatherSnapshot{
		Location: loc,
		Current: models.CurrentWeather{
			TempC:       22,
			FeelsLikeC:  23,
			Condition:   mockConditions[0],
			WindKph:     11.2,
			Humidity:    48,
			IsDay:       true,
			LastUpdated: now.Format("2006-01-02 15:04"),
		},
		Forecast: forecast,
	}
}
