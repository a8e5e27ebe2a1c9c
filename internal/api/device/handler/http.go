package deviceHandler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"JustNowBackend/internal/middleware"
)

type DeviceHandler struct {
	log        *logrus.Logger
	validator  *validator.Validate
	middleware middleware.Middleware
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
) *DeviceHandler {
	return &DeviceHandler{
		log:        log,
		validator:  validator,
		middleware: middleware,
	}
}

func (h *DeviceHandler) Start(srv fiber.Router) {
	device := srv.Group("/device")
	device.Post("/bind", h.BindDevice)
}
