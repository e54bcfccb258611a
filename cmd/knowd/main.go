package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/knowdhq/knowd/internal/ai"
	"github.com/knowdhq/knowd/internal/config"
	"github.com/knowdhq/knowd/internal/db"
	"github.com/knowdhq/knowd/internal/embedcache"
	"github.com/knowdhq/knowd/internal/handler"
	"github.com/knowdhq/knowd/internal/job"
	"github.com/knowdhq/knowd/internal/middleware"
	"github.com/knowdhq/knowd/internal/repo"
	"github.com/knowdhq/knowd/internal/schedule"
	"github.com/knowdhq/knowd/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "knowd",
		Short: "knowd knowledge retrieval server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run knowd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func priceTable(cfg config.BudgetConfig) service.PriceTable {
	models := map[string]service.ModelPrice{}
	for name, p := range cfg.ModelPrices {
		models[name] = service.ModelPrice{InputPer1KUSD: p.InputPer1KUSD, OutputPer1KUSD: p.OutputPer1KUSD}
	}
	return service.NewPriceTable(models, service.ModelPrice{
		InputPer1KUSD:  cfg.DefaultPrice.InputPer1KUSD,
		OutputPer1KUSD: cfg.DefaultPrice.OutputPer1KUSD,
	})
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("embed_model", cfg.AI.EmbedModel),
	)

	knowledgeRepo := repo.NewKnowledgeRepo(database)
	budgetRepo := repo.NewBudgetRepo(database)
	activityRepo := repo.NewActivityRepo(database)
	embedCacheRepo := repo.NewEmbeddingCacheRepo(database)

	budgetService := service.NewBudgetService(budgetRepo, cfg.Budget.DefaultMonthlyUSD)
	pricing := priceTable(cfg.Budget)

	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedProvider, err := ai.NewEmbedProvider(cfg.AI.EmbedProvider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai embed provider: %w", err)
	}
	generator := ai.NewGenerator(aiProvider, cfg.AI.ExtractModel)

	// Billing sits below both caches so only true misses are charged.
	meter := &embedcache.Meter{}
	embedder := ai.NewEmbedder(embedProvider, cfg.AI.EmbedModel, cfg.AI.EmbedDimensions)
	embedder = embedcache.WrapBudgetToEmbedder(embedder, budgetService, cfg.Budget.EmbedPricePer1KUSD, meter)
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, embedCacheRepo)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Cache.LRUSize, time.Duration(cfg.Cache.LRUTTLMinutes)*time.Minute)

	activityService := service.NewActivityService(activityRepo, 0)
	defer activityService.Close()
	searchService := service.NewSearchService(knowledgeRepo, embedder)
	extractService := service.NewExtractService(generator, embedder, knowledgeRepo, budgetService, pricing)
	knowledgeService := service.NewKnowledgeService(knowledgeRepo, embedder, activityService)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingBackfillJob(knowledgeRepo, embedder, cfg.Jobs.BackfillBatch), cfg.Jobs.BackfillSpec); err != nil {
		return fmt.Errorf("schedule backfill job: %w", err)
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(embedCacheRepo, cfg.Cache.RetentionDays), cfg.Jobs.CleanupSpec); err != nil {
		return fmt.Errorf("schedule cache cleanup job: %w", err)
	}

	deps := handler.RouterDeps{
		Knowledge:   handler.NewKnowledgeHandler(searchService, knowledgeService, extractService, activityService),
		Budget:      handler.NewBudgetHandler(budgetService),
		JWTSecret:   []byte(cfg.JWTSecret),
		AIRateLimit: time.Duration(cfg.AI.RateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
