package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-helpdesk/backend/internal/config"
	"github.com/zhouzirui/z-helpdesk/backend/internal/handler"
	"github.com/zhouzirui/z-helpdesk/backend/internal/observability"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/ai"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", "error", envErr)
	}

	generator := newGenerator(ctx, cfg.AI, logger)
	chatService := chat.NewService(generator, logger)
	router := handler.NewRouter(chatService, logger)

	startServer(ctx, cfg.Server, router, logger)
}

// newGenerator picks the reply generator. LLM mode silently degrades to the
// heuristic responder when Ark is not configured or fails to initialize.
func newGenerator(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) chat.Generator {
	if cfg.ResponderMode != config.ResponderModeLLM {
		logger.Info("using heuristic responder")
		return ai.HeuristicResponder{}
	}

	if !cfg.Enabled() {
		logger.Warn("Ark 凭证未配置，使用启发式应答")
		return ai.HeuristicResponder{}
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		logger.Warn("failed to create chat model, using heuristic responder", "error", err)
		return ai.HeuristicResponder{}
	}

	llm, err := ai.NewLLMResponder(ctx, chatModel, logger)
	if err != nil {
		logger.Warn("failed to build llm responder, using heuristic responder", "error", err)
		return ai.HeuristicResponder{}
	}

	logger.Info("using llm responder", "model", cfg.Model)
	return llm
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("z-helpdesk backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
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
