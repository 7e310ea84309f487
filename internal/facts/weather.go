// Package facts provides the auxiliary fact providers (current weather,
// date/time, web search) the context assembler can fold into a turn.
package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/seonho-lim/aide/pkg/logging"
)

// ErrLocationNotFound indicates the weather provider does not know the location.
var ErrLocationNotFound = errors.New("facts: location not found")

// WeatherReport is the structured result of a current-conditions lookup.
type WeatherReport struct {
	Location    string
	Description string
	Temperature float64
	FeelsLike   float64
	Humidity    int
	WindSpeed   float64
	Sunrise     time.Time
	Sunset      time.Time
}

// WeatherProvider looks up current conditions for a location.
type WeatherProvider interface {
	Lookup(ctx context.Context, location string) (*WeatherReport, error)
}

// OpenWeatherClient is an HTTP client for the OpenWeather current-weather API.
type OpenWeatherClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// WeatherOption is a functional option for configuring the client.
type WeatherOption func(*OpenWeatherClient)

// WithWeatherHTTPClient sets a custom HTTP client.
func WithWeatherHTTPClient(client *http.Client) WeatherOption {
	return func(c *OpenWeatherClient) {
		c.httpClient = client
	}
}

// WithWeatherBaseURL overrides the API base URL (used in tests).
func WithWeatherBaseURL(baseURL string) WeatherOption {
	return func(c *OpenWeatherClient) {
		c.baseURL = baseURL
	}
}

// WithWeatherLogger sets a custom logger.
func WithWeatherLogger(logger *logging.Logger) WeatherOption {
	return func(c *OpenWeatherClient) {
		c.logger = logger
	}
}

// NewOpenWeatherClient creates a current-weather client.
func NewOpenWeatherClient(apiKey string, opts ...WeatherOption) *OpenWeatherClient {
	c := &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type openWeatherPayload struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
	Name string `json:"name"`
}

// Lookup fetches current conditions for a location.
func (c *OpenWeatherClient) Lookup(ctx context.Context, location string) (*WeatherReport, error) {
	if c.apiKey == "" {
		return nil, errors.New("facts: openweather api key is not configured")
	}

	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric&lang=kr",
		c.baseURL, url.QueryEscape(location), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("facts: create weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facts: weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrLocationNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("facts: weather lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload openWeatherPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("facts: decode weather response: %w", err)
	}

	report := &WeatherReport{
		Location:    payload.Name,
		Temperature: payload.Main.Temp,
		FeelsLike:   payload.Main.FeelsLike,
		Humidity:    payload.Main.Humidity,
		WindSpeed:   payload.Wind.Speed,
		Sunrise:     time.Unix(payload.Sys.Sunrise, 0),
		Sunset:      time.Unix(payload.Sys.Sunset, 0),
	}
	if len(payload.Weather) > 0 {
		report.Description = payload.Weather[0].Description
	}

	c.logger.Debug("weather lookup succeeded", "location", report.Location, "temp", report.Temperature)
	return report, nil
}

// Summary renders the report as a short factual text block for prompt context.
func (r *WeatherReport) Summary() string {
	return fmt.Sprintf(
		"현재 %s 날씨: %s, 기온 %.1f°C (체감 %.1f°C), 습도 %d%%, 풍속 %.1fm/s, 일출 %s, 일몰 %s",
		r.Location, r.Description, r.Temperature, r.FeelsLike, r.Humidity, r.WindSpeed,
		r.Sunrise.Format("15:04"), r.Sunset.Format("15:04"),
	)
}
