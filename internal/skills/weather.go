package skills

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/persona"
)

var ErrCityNotFound = errors.New("city not found")

type WeatherReport struct {
	City        string
	State       string
	Country     string
	Temperature int
	FeelsLike   int
	Description string
	Humidity    int
	WindSpeed   float64
}

type WeatherSource interface {
	Configured() bool
	Current(ctx context.Context, city string) (WeatherReport, error)
}

var weatherKeywords = []string{"weather", "temperature", "forecast", "climate", "hot", "cold", "rain", "sunny"}

var cityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:weather|temperature|forecast)\b.*?\b(?:in|at|for) ([a-z][a-z\s]*)`),
	regexp.MustCompile(`(?:weather|temperature|forecast) ([a-z][a-z\s]*)`),
}

var cityStopWords = map[string]bool{
	"the": true, "is": true, "like": true, "today": true, "now": true, "currently": true,
	"and": true, "or": true, "tomorrow": true, "tonight": true, "please": true, "right": true,
	"this": true, "week": true, "weekend": true, "in": true, "at": true, "for": true,
	"a": true, "an": true, "going": true, "be": true, "will": true,
}

// ExtractCity finds the city named in a weather request, or "".
func ExtractCity(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, re := range cityPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		var kept []string
		for _, w := range strings.Fields(m[1]) {
			if cityStopWords[w] {
				if len(kept) > 0 {
					break
				}
				continue
			}
			kept = append(kept, w)
		}
		city := strings.Join(kept, " ")
		if len(city) > 1 {
			return titleCase(city)
		}
	}
	return ""
}

type Weather struct {
	source WeatherSource
	log    *logrus.Logger
}

func NewWeather(source WeatherSource, log *logrus.Logger) *Weather {
	return &Weather{source: source, log: log}
}

func (w *Weather) Name() string { return "weather-skill" }

func (w *Weather) TryHandle(ctx context.Context, text string, p persona.Persona) (string, bool) {
	if !hasPhrase(words(text), weatherKeywords...) {
		return "", false
	}

	city := ExtractCity(text)
	if city == "" {
		return say(p,
			"I can help you with the weather! Which city would you like me to check?",
			"Arrr! I can check the weather for ye, but I need to know which port ye want me to scout! What city should I check, matey?"), true
	}

	if w.source == nil || !w.source.Configured() {
		return say(p,
			fmt.Sprintf("I'm sorry, I can't check the weather in %s right now because the weather service is not configured.", city),
			fmt.Sprintf("Arrr! Me weather glass be broken, so I can't scout %s right now, matey!", city)), true
	}

	report, err := w.source.Current(ctx, city)
	if err != nil {
		w.log.WithFields(logrus.Fields{"skill": w.Name(), "city": city}).WithError(err).Warn("weather lookup failed")
		if errors.Is(err, ErrCityNotFound) {
			return say(p,
				fmt.Sprintf("I'm sorry, I couldn't find a city called %s.", city),
				fmt.Sprintf("Arrr! I searched every chart but found no port called %s, matey!", city)), true
		}
		return say(p,
			fmt.Sprintf("I'm sorry, I couldn't get the weather for %s right now.", city),
			fmt.Sprintf("Arrr! The weather seas be rough today, I couldn't reach %s, matey!", city)), true
	}
	return formatWeather(report, p), true
}

func formatWeather(r WeatherReport, p persona.Persona) string {
	place := r.City
	if r.State != "" {
		place += ", " + r.State
	}
	if r.Country != "" {
		place += ", " + r.Country
	}

	var b strings.Builder
	if p.IsAlternate() {
		fmt.Fprintf(&b, "Ahoy! Here be the weather report for %s! ", place)
		fmt.Fprintf(&b, "It be %d°C, feelin' like %d°C, with %s. ", r.Temperature, r.FeelsLike, strings.ToLower(r.Description))
		fmt.Fprintf(&b, "Wind blowin' at %.1f m/s and humidity at %d%%. Stay safe on the seas, matey!", r.WindSpeed, r.Humidity)
		return b.String()
	}
	fmt.Fprintf(&b, "Weather report for %s: ", place)
	fmt.Fprintf(&b, "%d°C, feels like %d°C, %s. ", r.Temperature, r.FeelsLike, strings.ToLower(r.Description))
	fmt.Fprintf(&b, "Wind %.1f m/s, humidity %d%%. Stay safe and prepared!", r.WindSpeed, r.Humidity)
	return b.String()
}

const (
	openWeatherGeoURL  = "https://api.openweathermap.org/geo/1.0/direct"
	openWeatherDataURL = "https://api.openweathermap.org/data/2.5/weather"
)

// OpenWeatherMap resolves the city with the geocoding API and then reads
// current conditions in metric units.
type OpenWeatherMap struct {
	APIKey  string
	GeoURL  string
	DataURL string
	client  *http.Client
}

func NewOpenWeatherMap(apiKey string) *OpenWeatherMap {
	return &OpenWeatherMap{
		APIKey:  strings.TrimSpace(apiKey),
		GeoURL:  openWeatherGeoURL,
		DataURL: openWeatherDataURL,
		client:  newHTTPClient(),
	}
}

func (o *OpenWeatherMap) Configured() bool { return o.APIKey != "" }

func (o *OpenWeatherMap) Current(ctx context.Context, city string) (WeatherReport, error) {
	var places []struct {
		Name    string  `json:"name"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		Country string  `json:"country"`
		State   string  `json:"state"`
	}
	q := url.Values{"q": {city}, "limit": {"1"}, "appid": {o.APIKey}}
	if err := getJSON(ctx, o.client, o.GeoURL+"?"+q.Encode(), &places); err != nil {
		return WeatherReport{}, err
	}
	if len(places) == 0 {
		return WeatherReport{}, ErrCityNotFound
	}
	place := places[0]

	var cur struct {
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	q = url.Values{
		"lat":   {fmt.Sprintf("%f", place.Lat)},
		"lon":   {fmt.Sprintf("%f", place.Lon)},
		"appid": {o.APIKey},
		"units": {"metric"},
	}
	if err := getJSON(ctx, o.client, o.DataURL+"?"+q.Encode(), &cur); err != nil {
		return WeatherReport{}, err
	}

	r := WeatherReport{
		City:        place.Name,
		State:       place.State,
		Country:     place.Country,
		Temperature: int(math.Round(cur.Main.Temp)),
		FeelsLike:   int(math.Round(cur.Main.FeelsLike)),
		Humidity:    cur.Main.Humidity,
		WindSpeed:   cur.Wind.Speed,
	}
	if len(cur.Weather) > 0 {
		r.Description = cur.Weather[0].Description
	}
	return r, nil
}
