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
	"github.com/zhouzirui/persona-studio/backend/internal/config"
	"github.com/zhouzirui/persona-studio/backend/internal/handler"
	"github.com/zhouzirui/persona-studio/backend/internal/model/persona"
	"github.com/zhouzirui/persona-studio/backend/internal/service/ai"
	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	imageService "github.com/zhouzirui/persona-studio/backend/internal/service/image"
	"github.com/zhouzirui/persona-studio/backend/internal/service/session"
	"github.com/zhouzirui/persona-studio/backend/internal/storage"
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

	personaStore, err := loadPersonas(cfg.Studio)
	if err != nil {
		log.Fatalf("failed to load personas: %v", err)
	}

	backend, err := storage.Open(storage.Kind(cfg.Storage.Backend), cfg.Storage.Path)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Printf("warning: failed to close storage: %v", err)
		}
	}()
	sessions := session.NewStore(backend)

	streamer, images := newClients(ctx, cfg)

	lastPersona, err := sessions.LastPersona(ctx)
	if err != nil {
		log.Printf("warning: failed to restore last persona: %v", err)
	}

	chat, err := chatService.NewController(personaStore, lastPersona, streamer, sessions)
	if err != nil {
		log.Fatalf("failed to create chat controller: %v", err)
	}
	defer chat.Close()
	go chat.RunAutosave(ctx, cfg.Studio.AutosaveInterval)

	imageCtl := imageService.NewController(images, imageService.WithEstimate(cfg.Studio.ImageEstimatedDuration))
	defer imageCtl.Close()

	router := handler.NewRouter(handler.Dependencies{
		Personas:    personaStore,
		Chat:        chat,
		Images:      imageCtl,
		Preferences: sessions,
		TypingSpeed: cfg.Studio.TypingSpeed,
	})

	startServer(ctx, cfg.Server, router)

	// 退出前最后保存一次未保存的对话
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if saved, err := chat.Autosave(flushCtx); err != nil {
		log.Printf("warning: final autosave failed: %v", err)
	} else if saved {
		log.Println("conversation autosaved before shutdown")
	}
}

func loadPersonas(studio config.StudioConfig) (*persona.MemoryStore, error) {
	if studio.PersonaCatalog == "" {
		return persona.NewMemoryStore(persona.Seed()), nil
	}
	items, err := persona.LoadCatalog(studio.PersonaCatalog)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d personas from %s", len(items), studio.PersonaCatalog)
	return persona.NewMemoryStore(items), nil
}

// newClients 根据配置选择聊天与图片生成的模型服务，未配置时返回 Unavailable。
func newClients(ctx context.Context, cfg *config.Config) (ai.ChatStreamer, ai.ImageGenerator) {
	var openAI *ai.OpenAIService
	if cfg.OpenAI.Enabled() {
		openAI = ai.NewOpenAIService(ai.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			ChatModel:  cfg.OpenAI.ChatModel,
			ImageModel: cfg.OpenAI.ImageModel,
			ImageSize:  cfg.OpenAI.ImageSize,
			Timeout:    cfg.OpenAI.Timeout,
		})
		log.Println("OpenAI service initialized successfully")
	} else {
		log.Println("OPENAI_API_KEY 未配置，图片生成不可用")
	}

	var images ai.ImageGenerator = ai.Unavailable{}
	if openAI != nil {
		images = openAI
	}

	var streamer ai.ChatStreamer = ai.Unavailable{}
	switch cfg.AI.Provider {
	case config.ProviderOpenAI:
		if openAI != nil {
			streamer = openAI
		} else {
			log.Println("AI_PROVIDER=openai but OPENAI_API_KEY is missing, chat disabled")
		}
	default:
		if !cfg.AI.Enabled() {
			log.Println("Ark 凭证未配置，跳过聊天功能初始化")
			break
		}
		ark, err := ai.NewArkService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
			break
		}
		streamer = ark
		log.Println("AI service initialized successfully")
	}

	return streamer, images
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Persona Studio backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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
