package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read once at startup from the environment (and .env via godotenv).
// Every backend is optional; an empty key means the stage runs in its fallback mode.
type Config struct {
	Port     string
	LogLevel string
	GinMode  string

	RecognitionBackend        string // assemblyai|google
	AssemblyAIKey             string
	AssemblyAIURL             string
	RecognitionConnectTimeout time.Duration
	RecognitionLanguage       string
	GoogleSpeechEnabled       bool

	VertexProjectID  string
	VertexLocation   string
	GeminiModel      string
	MaxResponseChars int
	MinTurnChars     int

	SynthesisBackend   string // murf|polly
	MurfAPIKey         string
	MurfURL            string
	PollyRegion        string
	SynthesisTimeout   time.Duration
	SynthesisAutoStart bool
	AudioChunkSize     int
	AudioChunkDelay    time.Duration

	OpenWeatherKey string
	SearchAPIURL   string

	RedisAddr     string
	AudioCacheTTL time.Duration
	MongoURI      string
	MongoDB       string
	PostgresURI   string
	GCSBucket     string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// AllowedOrigins restricts browser websocket upgrades; empty admits all.
	AllowedOrigins []string
}

func Load() Config {
	return Config{
		Port:     getString("PORT", "8080"),
		LogLevel: getString("LOG_LEVEL", "info"),
		GinMode:  getString("GIN_MODE", "release"),

		RecognitionBackend:        strings.ToLower(getString("RECOGNITION_BACKEND", "assemblyai")),
		AssemblyAIKey:             os.Getenv("ASSEMBLYAI_API_KEY"),
		AssemblyAIURL:             os.Getenv("ASSEMBLYAI_URL"),
		RecognitionConnectTimeout: getDuration("RECOGNITION_CONNECT_TIMEOUT", 10*time.Second),
		RecognitionLanguage:       getString("RECOGNITION_LANGUAGE", "en-US"),
		GoogleSpeechEnabled:       getBool("GOOGLE_SPEECH_ENABLED", false),

		VertexProjectID:  os.Getenv("VERTEX_PROJECT_ID"),
		VertexLocation:   getString("VERTEX_LOCATION", "us-central1"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		MaxResponseChars: getInt("MAX_RESPONSE_CHARS", 3000),
		MinTurnChars:     getInt("MIN_TURN_CHARS", 3),

		SynthesisBackend:   strings.ToLower(getString("SYNTHESIS_BACKEND", "murf")),
		MurfAPIKey:         os.Getenv("MURF_API_KEY"),
		MurfURL:            os.Getenv("MURF_WS_URL"),
		PollyRegion:        os.Getenv("POLLY_REGION"),
		SynthesisTimeout:   getDuration("SYNTHESIS_TIMEOUT", 30*time.Second),
		SynthesisAutoStart: getBool("SYNTHESIS_AUTO_START", false),
		AudioChunkSize:     getInt("AUDIO_CHUNK_SIZE", 1024),
		AudioChunkDelay:    getDuration("AUDIO_CHUNK_DELAY", 200*time.Millisecond),

		OpenWeatherKey: os.Getenv("OPENWEATHER_API_KEY"),
		SearchAPIURL:   os.Getenv("SEARCH_API_URL"),

		RedisAddr:     firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
		AudioCacheTTL: getDuration("AUDIO_CACHE_TTL", 24*time.Hour),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDB:       getString("MONGO_DB", "voxaura"),
		PostgresURI:   os.Getenv("POSTGRES_URI"),
		GCSBucket:     os.Getenv("GCS_AUDIO_BUCKET"),

		JWTSecret:   os.Getenv("SUPABASE_JWT_SECRET"),
		JWTIssuer:   os.Getenv("SUPABASE_JWT_ISSUER"),
		JWTAudience: os.Getenv("SUPABASE_JWT_AUDIENCE"),

		AllowedOrigins: getList("WS_ALLOWED_ORIGINS"),
	}
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// getList splits a comma separated value and drops empty items.
func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getInt(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
		return n
	}
	return def
}

func getBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return b
	}
	return def
}

// getDuration accepts Go durations ("250ms") or plain seconds ("10").
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
