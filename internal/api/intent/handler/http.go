package intentHandler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	intentService "JustNowBackend/internal/api/intent/service"
	"JustNowBackend/internal/middleware"
	"JustNowBackend/pkg/utils"
)

type IntentHandler struct {
	log           *logrus.Logger
	validator     *validator.Validate
	middleware    middleware.Middleware
	intentService intentService.IIntentService
	utils         utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	is intentService.IIntentService,
	utils utils.IUtils,
) *IntentHandler {
	return &IntentHandler{
		intentService: is,
		log:           log,
		validator:     validator,
		middleware:    middleware,
		utils:         utils,
	}
}

func (h *IntentHandler) Start(srv fiber.Router) {
	intent := srv.Group("/intent")
	intent.Use(h.middleware.NewDeviceTokenMiddleware)
	intent.Post("/process", h.ProcessIntent)
	intent.Post("/cancel", h.CancelAttempt)
	intent.Get("/history", h.GetHistory)
}
