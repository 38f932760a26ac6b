// Package weather looks up cities and daily forecasts on open-meteo.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appLog "journeycal/internal/log"
	"journeycal/internal/model"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1"
	DefaultForecastURL  = "https://api.open-meteo.com/v1"
	DefaultTimeout      = 10 * time.Second
	DefaultRate         = 5.0
	DefaultLanguage     = "en"
	DefaultCount        = 10

	// MaxCount caps the number of city candidates returned by SearchCities.
	MaxCount = 10

	// minQueryLength is the shortest trimmed query sent to the geocoder.
	minQueryLength = 2

	dailyFields = "weathercode,temperature_2m_max,temperature_2m_min"
)

// ErrUpstream marks a non-2xx answer from open-meteo.
var ErrUpstream = errors.New("weather: upstream error")

// City is one geocoding result.
type City struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Admin1      string  `json:"admin1,omitempty"`
	Timezone    string  `json:"timezone"`
}

// DisplayName renders "name, admin1, country", skipping an empty admin1.
func (c City) DisplayName() string {
	parts := []string{c.Name}
	if c.Admin1 != "" {
		parts = append(parts, c.Admin1)
	}
	parts = append(parts, c.Country)
	return strings.Join(parts, ", ")
}

// Location converts the result into the shape stored on events.
func (c City) Location() model.CityLocation {
	return model.CityLocation{
		Name:        c.Name,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		Country:     c.Country,
		CountryCode: c.CountryCode,
		Admin1:      c.Admin1,
		Timezone:    c.Timezone,
	}
}

// codeTypes maps WMO weather interpretation codes to a WeatherType.
var codeTypes = map[int]model.WeatherType{
	0: model.WeatherSunny, 1: model.WeatherSunny,
	2: model.WeatherCloudy, 3: model.WeatherCloudy, 45: model.WeatherCloudy, 48: model.WeatherCloudy,
	51: model.WeatherDrizzle, 53: model.WeatherDrizzle, 55: model.WeatherDrizzle,
	56: model.WeatherDrizzle, 57: model.WeatherDrizzle,
	61: model.WeatherRainy, 63: model.WeatherRainy, 65: model.WeatherRainy,
	66: model.WeatherRainy, 67: model.WeatherRainy,
	71: model.WeatherSnowy, 73: model.WeatherSnowy, 75: model.WeatherSnowy, 77: model.WeatherSnowy,
	80: model.WeatherRainy, 81: model.WeatherRainy, 82: model.WeatherRainy,
	85: model.WeatherSnowy, 86: model.WeatherSnowy,
	95: model.WeatherRainy, 96: model.WeatherRainy, 99: model.WeatherRainy,
}

// TypeForCode classifies a WMO code; unknown codes are cloudy.
func TypeForCode(code int) model.WeatherType {
	if t, ok := codeTypes[code]; ok {
		return t
	}
	return model.WeatherCloudy
}

// roundHalfUp rounds .5 toward +Inf, so -2.5 becomes -2.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Options configures a Client. Zero values select the defaults above.
type Options struct {
	GeocodingURL  string
	ForecastURL   string
	Timeout       time.Duration
	RatePerSecond float64
	Language      string
	Count         int

	// HTTPClient overrides the transport; its Timeout is left as given.
	HTTPClient *http.Client
	// Observe, when set, is called after every upstream request.
	Observe func(endpoint string, took time.Duration, err error)
}

// Client talks to the open-meteo geocoding and forecast APIs.
type Client struct {
	http         *http.Client
	limiter      *rate.Limiter
	geocodingURL string
	forecastURL  string
	language     string
	count        int
	observe      func(string, time.Duration, error)
}

func New(opts Options) *Client {
	if opts.GeocodingURL == "" {
		opts.GeocodingURL = DefaultGeocodingURL
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = DefaultForecastURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}
	opts.Count = min(opts.Count, MaxCount)
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = int(math.Max(1, math.Ceil(opts.RatePerSecond)))
	}

	return &Client{
		http:         hc,
		limiter:      rate.NewLimiter(limit, burst),
		geocodingURL: strings.TrimRight(opts.GeocodingURL, "/"),
		forecastURL:  strings.TrimRight(opts.ForecastURL, "/"),
		language:     opts.Language,
		count:        opts.Count,
		observe:      opts.Observe,
	}
}

type geocodingResponse struct {
	Results []City `json:"results"`
}

// SearchCities returns up to Count matches for query. Queries shorter than
// two characters after trimming return an empty slice without a request.
func (c *Client) SearchCities(ctx context.Context, query string) ([]City, error) {
	q := strings.TrimSpace(query)
	if len([]rune(q)) < minQueryLength {
		return []City{}, nil
	}

	params := url.Values{}
	params.Set("name", q)
	params.Set("count", strconv.Itoa(c.count))
	params.Set("language", c.language)
	params.Set("format", "json")

	var resp geocodingResponse
	if err := c.get(ctx, "search", c.geocodingURL+"/search?"+params.Encode(), &resp); err != nil {
		appLog.Error("city search failed", err, "query", q)
		return nil, err
	}
	if resp.Results == nil {
		return []City{}, nil
	}
	if len(resp.Results) > c.count {
		resp.Results = resp.Results[:c.count]
	}
	return resp.Results, nil
}

type forecastResponse struct {
	Daily struct {
		Time           []string  `json:"time"`
		WeatherCode    []int     `json:"weathercode"`
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// Forecast returns the daily forecast for date (YYYY-MM-DD) at the given
// coordinates, or nil when open-meteo has no data for that day.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, date string) (*model.Weather, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("daily", dailyFields)
	params.Set("timezone", "auto")
	params.Set("start_date", date)
	params.Set("end_date", date)

	var resp forecastResponse
	if err := c.get(ctx, "forecast", c.forecastURL+"/forecast?"+params.Encode(), &resp); err != nil {
		appLog.Error("forecast failed", err, "lat", lat, "lon", lon, "date", date)
		return nil, err
	}

	d := resp.Daily
	if len(d.Time) == 0 || len(d.WeatherCode) == 0 || len(d.TemperatureMax) == 0 || len(d.TemperatureMin) == 0 {
		return nil, nil
	}
	code := d.WeatherCode[0]
	return &model.Weather{
		Type:           TypeForCode(code),
		TemperatureMax: roundHalfUp(d.TemperatureMax[0]),
		TemperatureMin: roundHalfUp(d.TemperatureMin[0]),
		WeatherCode:    code,
	}, nil
}

// ForecastFor is Forecast for an event location.
func (c *Client) ForecastFor(ctx context.Context, loc model.CityLocation, date string) (*model.Weather, error) {
	return c.Forecast(ctx, loc.Latitude, loc.Longitude, date)
}

func (c *Client) get(ctx context.Context, endpoint, rawURL string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(endpoint, time.Since(start), err)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("weather: %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("weather: %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	appLog.Debug("weather request", "endpoint", endpoint, "url", rawURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("weather: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %s", ErrUpstream, endpoint, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("weather: %s: decode: %w", endpoint, err)
	}
	return nil
}
