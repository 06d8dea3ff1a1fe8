package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/config"
	"github.com/zhouzirui/serene/backend/internal/handler"
	"github.com/zhouzirui/serene/backend/internal/logger"
	"github.com/zhouzirui/serene/backend/internal/middleware"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	"github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/sentiment"
	"github.com/zhouzirui/serene/backend/internal/service/stats"
	"github.com/zhouzirui/serene/backend/internal/service/upload"
	"github.com/zhouzirui/serene/backend/internal/store"
	firestorestore "github.com/zhouzirui/serene/backend/internal/store/firestore"
	"github.com/zhouzirui/serene/backend/internal/store/memory"
	"github.com/zhouzirui/serene/backend/internal/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.New("serene-api", cfg.Server.LogLevel)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env not loaded, using system environment only")
	}

	var app *firebase.App
	if cfg.Auth.Provider == config.AuthFirebase || cfg.Store.Driver == config.StoreFirestore {
		app, err = cfg.Firebase.NewApp(ctx)
		if err != nil {
			log.Fatal().Stack().Err(err).Msg("failed to initialize firebase")
		}
	}

	provider, err := newAuthProvider(ctx, cfg.Auth, app)
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("failed to initialize auth provider")
	}

	st, err := newStore(ctx, cfg.Store, app)
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("failed to initialize store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Stack().Err(err).Msg("failed to close store")
		}
	}()
	log.Info().Str("driver", cfg.Store.Driver).Str("auth", cfg.Auth.Provider).Msg("storage ready")

	classifier := sentiment.NewService(cfg.Sentiment)
	if classifier.Enabled() {
		log.Info().Str("model", cfg.Sentiment.Model).Msg("sentiment classifier enabled")
	} else {
		log.Warn().Msg("HUGGINGFACE_API_KEY not set, sentiment uses keyword fallback")
	}

	// Initialize AI service
	var chatModel model.BaseChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize chat model, continuing with fallback responses")
			chatModel = nil
		}
	} else {
		log.Warn().Str("provider", cfg.AI.Provider).Msg("LLM credentials not configured, using fallback responses")
	}
	generator, err := ai.NewService(ctx, chatModel, cfg.AI.Timeout)
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("failed to initialize AI service")
	}
	if generator.Enabled() {
		log.Info().Str("provider", cfg.AI.Provider).Msg("AI service initialized successfully")
	}

	router := handler.NewRouter(handler.Deps{
		Auth:       provider,
		Store:      st,
		Chat:       chat.NewService(st, classifier, generator),
		Classifier: classifier,
		Stats:      stats.NewService(st),
		Uploads:    upload.NewService(cfg.Upload, cfg.Server.PublicBaseURL),
		Origins:    middleware.SplitOrigins(cfg.Server.FrontendOrigin),
	})

	startServer(ctx, cfg.Server, router)
}

func newAuthProvider(ctx context.Context, cfg config.AuthConfig, app *firebase.App) (auth.Provider, error) {
	if cfg.Provider == config.AuthJWT {
		return auth.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer), nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return auth.NewFirebaseProvider(client), nil
}

func newStore(ctx context.Context, cfg config.StoreConfig, app *firebase.App) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		log.Warn().Msg("memory store selected, data is lost on restart")
		return memory.New(), nil
	case config.StoreSQLite:
		return sqlite.New(cfg.SQLitePath)
	default:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firestore: %w", err)
		}
		return firestorestore.New(client), nil
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("mental wellness backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Stack().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
