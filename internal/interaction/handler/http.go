package interactionHandler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	intentService "JustNowBackend/internal/api/intent/service"
	"JustNowBackend/internal/middleware"
	"JustNowBackend/pkg/asr"
	"JustNowBackend/pkg/utils"
)

type InteractionHandler struct {
	log           *logrus.Logger
	middleware    middleware.Middleware
	intentService intentService.IIntentService
	transcriber   asr.ITranscriber
	utils         utils.IUtils
}

func New(
	log *logrus.Logger,
	middleware middleware.Middleware,
	is intentService.IIntentService,
	transcriber asr.ITranscriber,
	utils utils.IUtils,
) *InteractionHandler {
	return &InteractionHandler{
		log:           log,
		middleware:    middleware,
		intentService: is,
		transcriber:   transcriber,
		utils:         utils,
	}
}

func (h *InteractionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	interaction := srv.Group("/interaction")
	interaction.Use("/ws", h.middleware.NewDeviceTokenMiddleware, wsMiddleware)
	interaction.Get("/ws", websocket.New(h.handleSession))
}
