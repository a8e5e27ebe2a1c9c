package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"JustNowBackend/database/postgres"
	deviceHandler "JustNowBackend/internal/api/device/handler"
	intentHandler "JustNowBackend/internal/api/intent/handler"
	intentRepository "JustNowBackend/internal/api/intent/repository"
	intentService "JustNowBackend/internal/api/intent/service"
	interactionHandler "JustNowBackend/internal/interaction/handler"
	"JustNowBackend/internal/middleware"
	"JustNowBackend/pkg/asr"
	"JustNowBackend/pkg/gemini"
	"JustNowBackend/pkg/idempotency"
	"JustNowBackend/pkg/openai"
	"JustNowBackend/pkg/redis"
	"JustNowBackend/pkg/retrypolicy"
	"JustNowBackend/pkg/rollback"
	"JustNowBackend/pkg/s3"
	"JustNowBackend/pkg/uischema"
	"JustNowBackend/pkg/utils"
)

type ServerOption func(*Server) error

type Server struct {
	engine          *fiber.App
	db              *sqlx.DB
	log             *logrus.Logger
	middleware      middleware.Middleware
	validator       *validator.Validate
	utils           utils.IUtils
	handlers        []handler
	redisServer     redis.IRedis
	geminiClient    gemini.IGemini
	chatClient      openai.IGenUIChat
	transcriber     asr.ITranscriber
	s3Client        s3.ItfS3
	rollbackWatcher rollback.IWatcher
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithGeminiClient() ServerOption {
	return func(s *Server) error {
		client, err := gemini.NewGeminiClient()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to create Gemini client: %v", err)
			}
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		s.geminiClient = client
		return nil
	}
}

func WithChatClient() ServerOption {
	return func(s *Server) error {
		s.chatClient = openai.New()
		return nil
	}
}

func WithTranscriber() ServerOption {
	return func(s *Server) error {
		s.transcriber = asr.NewTranscriberClient()
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithRollbackWatcher() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before rollback watcher")
		}
		version := os.Getenv("PROMPT_VERSION")
		if version == "" {
			version = "prompt-v1"
		}
		s.rollbackWatcher = rollback.New(s.log, version,
			rollback.WithRollbackHook(func(from, to string) {
				s.log.Errorf("Schema violation rate breached threshold, rolled back %s -> %s", from, to)
			}),
		)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Intent Domain
	intentRepo := intentRepository.New(s.db, s.log)
	idemCache := idempotency.New(s.redisServer, s.log)
	controller := retrypolicy.NewController(s.log)
	schemaValidator := uischema.New()

	var primary, fallback intentService.Generator
	if s.geminiClient != nil {
		primary = s.geminiClient
	}
	if s.chatClient != nil {
		fallback = s.chatClient
	}

	intentServices := intentService.NewIntentService(s.log, intentRepo, idemCache, controller,
		s.rollbackWatcher, schemaValidator, s.utils, primary, fallback, s.s3Client)
	intentHandlers := intentHandler.New(s.log, s.validator, s.middleware, intentServices, s.utils)

	// Interaction Domain
	interactionHandlers := interactionHandler.New(s.log, s.middleware, intentServices, s.transcriber, s.utils)

	// Device Domain
	deviceHandlers := deviceHandler.New(s.log, s.validator, s.middleware)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, intentHandlers, interactionHandlers, deviceHandlers)
}

func (s *Server) Run() error {
	router := s.engine.Group("/api/v1")
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewScenarioGuardMiddleware())
	s.engine.Use(s.middleware.NewRateLimiter)
	s.engine.Use(middleware.LoggerConfig())

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting new connections and tears down background
// observers.
func (s *Server) Shutdown() error {
	if s.rollbackWatcher != nil {
		s.rollbackWatcher.Stop()
	}
	if s.transcriber != nil {
		s.transcriber.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.engine.Shutdown()
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		providers := make([]string, 0, 2)
		if s.geminiClient != nil {
			providers = append(providers, s.geminiClient.ProviderName())
		}
		if s.chatClient != nil {
			providers = append(providers, s.chatClient.ProviderName())
		}
		status := fiber.Map{
			"message":   "Server is Healthy!",
			"providers": providers,
		}
		if s.transcriber != nil {
			status["asr_connected"] = s.transcriber.IsConnected()
		}
		return ctx.JSON(status)
	})
}
