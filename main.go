package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"intake/api"
	"intake/config"
	"intake/database"
	"intake/llm"
	"intake/logging"
	"intake/middleware"
	"intake/registry"
	"intake/repository"
	"intake/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: failed to load configuration: %v", err)
	}

	logger, err := logging.Init(cfg.Logging)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Init(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	reg, err := registry.Load(cfg.Assessment.QuestionBankPath)
	if err != nil {
		logger.Fatal("Failed to load question bank",
			zap.String("path", cfg.Assessment.QuestionBankPath),
			zap.Error(err))
	}
	logger.Info("Question bank loaded",
		zap.Int("modules", len(reg.Modules())),
		zap.Int("questions", len(reg.All())))

	assessmentRepo := repository.NewAssessmentRepository(db, logger)

	// The advisor is optional. Without it the selector runs purely
	// deterministic question ordering.
	var advisor services.QuestionAdvisor
	if cfg.AI.Enabled {
		a, err := llm.New(cfg.AI, logger)
		if err != nil {
			logger.Warn("AI advisor unavailable, continuing without it", zap.Error(err))
		} else {
			advisor = a
			logger.Info("AI advisor enabled", zap.String("model", cfg.AI.Model))
		}
	}

	evaluator := services.NewEvaluator(reg)
	activation := services.NewActivationEngine(reg, logger)
	selector := services.NewSelector(reg, evaluator, activation, advisor, cfg.Assessment, cfg.AI, logger)
	tracker := services.NewProgressTracker(reg, cfg.Assessment)
	assessmentService := services.NewAssessmentService(
		assessmentRepo, reg, activation, selector, tracker, cfg.Assessment, logger)

	handler := api.NewAPIHandler(assessmentService, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Cors())
	handler.RegisterRoutes(r)

	addr := ":" + cfg.Server.Port
	logger.Info("Starting server", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}
}
