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

	"github.com/zhouzirui/z-haven/backend/internal/capability"
	"github.com/zhouzirui/z-haven/backend/internal/config"
	"github.com/zhouzirui/z-haven/backend/internal/handler"
	"github.com/zhouzirui/z-haven/backend/internal/service/analyzer"
	"github.com/zhouzirui/z-haven/backend/internal/service/history"
	"github.com/zhouzirui/z-haven/backend/internal/service/pipeline"
	"github.com/zhouzirui/z-haven/backend/internal/service/responder"
	"github.com/zhouzirui/z-haven/backend/internal/service/retrieval"
	"github.com/zhouzirui/z-haven/backend/internal/service/safety"
	"github.com/zhouzirui/z-haven/backend/internal/service/voice"
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

	registry := capability.NewRegistry()
	histStore := history.NewStore()

	analyzerCfg := analyzer.Config{
		HighThreshold:     cfg.Safety.RiskHighThreshold,
		ModerateThreshold: cfg.Safety.RiskModerateThreshold,
		VoiceBlendWeight:  cfg.Safety.VoiceBlendWeight,
	}
	heuristic := analyzer.NewHeuristicAnalyzer(analyzerCfg)

	// 情绪分类：优先走 Ark 模型，凭证缺失或初始化失败时退回词表启发式。
	var analyzerBuild func() (any, error)
	if cfg.AI.Enabled() {
		analyzerBuild = func() (any, error) {
			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				return nil, err
			}
			return analyzer.NewLLMAnalyzer(ctx, chatModel, analyzerCfg, cfg.AI.Timeout, func(reason string) {
				registry.MarkRuntime(capability.EmotionClassifier, reason)
			})
		}
	}
	registry.Provide(capability.EmotionClassifier, analyzerBuild, heuristic)

	// 上下文检索:向量检索不可用时退回情绪标签目录。
	catalog := retrieval.NewCatalogRetriever(cfg.Retrieval.TopK)
	var retrieverBuild func() (any, error)
	if cfg.AI.EmbeddingEnabled() {
		retrieverBuild = func() (any, error) {
			embedder, err := cfg.AI.NewEmbedder(ctx)
			if err != nil {
				return nil, err
			}
			return retrieval.NewVectorRetriever(ctx, embedder, retrieval.Options{
				TopK:           cfg.Retrieval.TopK,
				RelevanceFloor: cfg.Retrieval.RelevanceFloor,
				Timeout:        cfg.Retrieval.Timeout,
			}, func(reason string) {
				registry.MarkRuntime(capability.Retriever, reason)
			})
		}
	}
	registry.Provide(capability.Retriever, retrieverBuild, catalog)

	// 回复生成：生成模型失败时退回情绪模板。
	templates := responder.NewTemplateResponder()
	var responderBuild func() (any, error)
	if cfg.AI.Enabled() {
		responderBuild = func() (any, error) {
			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				return nil, err
			}
			return responder.NewLLMResponder(ctx, chatModel, histStore, responder.Options{
				Timeout:       cfg.AI.Timeout,
				RetryBackoff:  cfg.AI.RetryBackoff,
				MaxReplyChars: cfg.AI.MaxReplyChars,
			}, func(reason string) {
				registry.MarkRuntime(capability.Responder, reason)
			})
		}
	}
	registry.Provide(capability.Responder, responderBuild, templates)

	// 语音转写：未配置凭证时直接透传文本。
	var voiceBuild func() (any, error)
	if cfg.Speech.Enabled {
		voiceBuild = func() (any, error) {
			return voice.NewASRProcessor(voice.Options{
				AppID:       cfg.Speech.AppID,
				AccessToken: cfg.Speech.AccessToken,
				BaseURL:     cfg.Speech.BaseURL,
				Model:       cfg.Speech.ASRModel,
				Language:    cfg.Speech.ASRLanguage,
				Timeout:     cfg.Speech.Timeout,
			}), nil
		}
	}
	registry.Provide(capability.Transcriber, voiceBuild, voice.NewPassthroughProcessor())

	resolvedRetriever := registry.Resolve(capability.Retriever).(retrieval.Retriever)
	var memory pipeline.Memory
	if vec, ok := resolvedRetriever.(*retrieval.VectorRetriever); ok {
		memory = vec
	}

	advisor := safety.NewAdvisor(safety.Config{
		RiskConfidenceThreshold:    cfg.Safety.RiskConfidenceThreshold,
		EmotionConfidenceThreshold: cfg.Safety.EmotionConfidenceThreshold,
		ExposeDetectorTrace:        cfg.Safety.ExposeDetectorTrace,
	})

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Analyzer:    registry.Resolve(capability.EmotionClassifier).(analyzer.Analyzer),
		Retriever:   resolvedRetriever,
		Responder:   registry.Resolve(capability.Responder).(responder.Responder),
		Advisor:     advisor,
		Voice:       registry.Resolve(capability.Transcriber).(voice.Processor),
		History:     histStore,
		Memory:      memory,
		ExposeTrace: cfg.Safety.ExposeDetectorTrace,
	})

	for _, d := range registry.Degradations() {
		log.Printf("capability %s running on fallback: %s", d.Capability, d.Reason)
	}

	router := handler.NewRouter(orchestrator, histStore, registry)

	startServer(ctx, cfg.Server, router)
	registry.Shutdown()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Haven backend listening on %s", addr)
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
