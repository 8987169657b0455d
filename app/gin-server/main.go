package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/config"
	"github.com/yoockh/voxaura/internal/api/handlers"
	"github.com/yoockh/voxaura/internal/api/middleware"
	"github.com/yoockh/voxaura/internal/api/routes"
	"github.com/yoockh/voxaura/internal/broadcast"
	"github.com/yoockh/voxaura/internal/cache"
	"github.com/yoockh/voxaura/internal/generation"
	"github.com/yoockh/voxaura/internal/logger"
	"github.com/yoockh/voxaura/internal/metrics"
	"github.com/yoockh/voxaura/internal/orchestrator"
	"github.com/yoockh/voxaura/internal/providers/llm"
	"github.com/yoockh/voxaura/internal/providers/stt"
	"github.com/yoockh/voxaura/internal/providers/tts"
	"github.com/yoockh/voxaura/internal/recognition"
	mongorepo "github.com/yoockh/voxaura/internal/repositories/mongo"
	pgrepo "github.com/yoockh/voxaura/internal/repositories/postgres"
	"github.com/yoockh/voxaura/internal/services"
	"github.com/yoockh/voxaura/internal/session"
	"github.com/yoockh/voxaura/internal/skills"
	"github.com/yoockh/voxaura/internal/storage"
	"github.com/yoockh/voxaura/internal/synthesis"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.New(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("voxaura")
	opts := orchestrator.Options{
		SynthesisAutoStart: cfg.SynthesisAutoStart,
		Metrics:            m,
	}

	// Optional stores. A missing env var leaves the collaborator disabled.
	var audioCache *cache.AudioCache
	if cfg.RedisAddr != "" {
		rdb, err := config.InitRedis(cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, audio cache and event mirror disabled")
		} else {
			defer rdb.Close()
			audioCache = cache.NewAudioCache(cache.NewRedisCache(rdb, cache.DefaultPrefix), cfg.AudioCacheTTL)
			opts.Publisher = broadcast.NewRedisPublisher(rdb)
			log.Info("redis connected")
		}
	}

	if cfg.MongoURI != "" {
		mc, err := config.InitMongo(cfg.MongoURI)
		if err != nil {
			log.WithError(err).Warn("mongo unavailable, session audit disabled")
		} else {
			defer func() {
				dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = mc.Disconnect(dctx)
			}()
			db := mc.Database(cfg.MongoDB)
			if err := config.EnsureMongoIndexes(db); err != nil {
				log.WithError(err).Warn("mongo index setup failed")
			}
			opts.Audit = services.NewSessionAudit(mongorepo.NewSessionRepo(db))
			log.Info("mongo connected")
		}
	}

	if cfg.PostgresURI != "" {
		db, err := config.InitPostgres(cfg.PostgresURI)
		if err != nil {
			log.WithError(err).Warn("postgres unavailable, conversation log disabled")
		} else if err := pgrepo.AutoMigrate(db); err != nil {
			log.WithError(err).Warn("conversation log migration failed")
		} else {
			opts.Conversations = services.NewConversationService(pgrepo.NewConversationRepo(db))
			log.Info("postgres connected")
		}
	}

	reg := session.NewRegistry(session.Options{MinTurnChars: cfg.MinTurnChars})
	recognizer := newRecognizer(cfg, log)
	if c, ok := recognizer.(interface{ Close() error }); ok {
		defer c.Close()
	}

	provider := newProvider(ctx, cfg, log)
	if provider != nil {
		defer provider.Close()
	}
	interceptors := []skills.Interceptor{
		skills.NewWeather(skills.NewOpenWeatherMap(cfg.OpenWeatherKey), log),
		skills.NewSearch(skills.NewDuckDuckGo(cfg.SearchAPIURL), log),
		skills.NewStudy(skills.NewHTTPFetcher(), log),
		skills.NewDocument(),
	}

	streamer := synthesis.NewStreamer(newSynthesizer(cfg), synthesis.Options{
		ChunkSize:  cfg.AudioChunkSize,
		ChunkDelay: cfg.AudioChunkDelay,
		Timeout:    cfg.SynthesisTimeout,
	}, log)
	if audioCache != nil {
		streamer.WithCache(audioCache)
	}
	if cfg.GCSBucket != "" {
		archiver, err := storage.NewGCSArchiver(ctx, cfg.GCSBucket)
		if err != nil {
			log.WithError(err).Warn("gcs unavailable, audio archive disabled")
		} else {
			defer archiver.Close()
			streamer.WithArchive(archiver)
		}
	}

	orch := orchestrator.New(
		reg,
		recognition.NewManager(reg, recognizer, cfg.RecognitionConnectTimeout, log),
		generation.NewGenerator(provider, interceptors, cfg.MaxResponseChars, log),
		streamer,
		opts,
		log,
	)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Session:      handlers.NewSessionHandler(orch, opts.Audit),
		Conversation: handlers.NewConversationHandler(opts.Conversations),
		WS:           handlers.NewWSHandler(orch, cfg.AllowedOrigins, log),
		Metrics:      m.Handler(),
		JWT: middleware.JWTConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"recognition": recognizer.Configured(),
			"generation":  provider != nil,
			"synthesis":   streamer.Configured(),
		}).Info("voxaura listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	n := orch.Shutdown()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	log.WithField("sessions_closed", n).Info("bye")
}

func newRecognizer(cfg config.Config, log *logrus.Logger) stt.Recognizer {
	if cfg.RecognitionBackend == "google" {
		return stt.NewGoogleSpeech(cfg.GoogleSpeechEnabled, cfg.RecognitionLanguage)
	}
	if cfg.AssemblyAIKey == "" {
		log.Warn("ASSEMBLYAI_API_KEY not set, transcription disabled")
	}
	return stt.NewAssemblyAI(cfg.AssemblyAIKey, cfg.AssemblyAIURL)
}

func newProvider(ctx context.Context, cfg config.Config, log *logrus.Logger) llm.Provider {
	if cfg.VertexProjectID == "" {
		log.Warn("VERTEX_PROJECT_ID not set, replies use the scripted fallback")
		return nil
	}
	p, err := llm.NewVertexGemini(ctx, cfg.VertexProjectID, cfg.VertexLocation, cfg.GeminiModel)
	if err != nil {
		log.WithError(err).Warn("vertex client failed, replies use the scripted fallback")
		return nil
	}
	return p
}

func newSynthesizer(cfg config.Config) tts.Synthesizer {
	if cfg.SynthesisBackend == "polly" {
		return tts.NewPolly(tts.PollyConfig{Region: cfg.PollyRegion})
	}
	return tts.NewMurf(cfg.MurfAPIKey, cfg.MurfURL)
}
