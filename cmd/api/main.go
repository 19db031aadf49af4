package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/vehicle-assist/backend/internal/bootstrap"
	"github.com/zhouzirui/vehicle-assist/backend/internal/config"
	"github.com/zhouzirui/vehicle-assist/backend/internal/handler"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/chat"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/intake"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	vehicles, err := bootstrap.Vehicles(cfg.Catalog)
	if err != nil {
		log.Fatalf("failed to load vehicle catalog: %v", err)
	}

	repo, repoCloser, err := bootstrap.Repository(cfg.Issues)
	if err != nil {
		log.Fatalf("failed to open issue store: %v", err)
	}
	defer repoCloser.Close()

	transcriber, speechMode := bootstrap.Transcriber(cfg.Speech)
	if speechMode == bootstrap.SpeechModeMock {
		log.Println("语音服务凭证未配置，使用模拟识别")
	} else {
		log.Println("Speech service initialized successfully")
	}

	classifier, err := bootstrap.Classifier(ctx, cfg.Classifier)
	if err != nil {
		log.Fatalf("failed to initialize issue classifier: %v", err)
	}
	log.Printf("issue classifier mode=%s", cfg.Classifier.Mode)

	chatService := chat.NewService(chat.WithReplyDelay(cfg.Chat.ReplyDelay))
	defer chatService.Close()

	intakeService := intake.NewService(intake.Deps{
		Microphone:  speech.NewBufferMicrophone(cfg.Speech.MaxCaptures, cfg.Speech.MaxCaptureBytes),
		Transcriber: transcriber,
		Classifier:  classifier,
		Submitter:   bootstrap.Submitter(cfg.Issues, repo),
		AudioFormat: cfg.Speech.AudioFormat,
		Language:    cfg.Speech.ASRLanguage,
	}, vehicles)
	defer intakeService.Close()

	go chatService.RunIdleSweeper(ctx, cfg.Server.SessionIdleTTL)
	go intakeService.RunIdleSweeper(ctx, cfg.Server.SessionIdleTTL)

	router := handler.NewRouter(cfg.Server.AllowedOrigins, handler.Services{
		Vehicles:       vehicles,
		Chat:           chatService,
		Intake:         intakeService,
		Issues:         repo,
		Transcriber:    transcriber,
		SpeechMode:     speechMode,
		SpeechLanguage: cfg.Speech.ASRLanguage,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Vehicle assist backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
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
