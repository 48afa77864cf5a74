package providers

import (
	"emergency-service/internal/config"
	"emergency-service/internal/dispatch"
	"emergency-service/internal/logging"
	"emergency-service/internal/models"
	"emergency-service/internal/realtime"
)

// Channels wires one delivery channel per supported notification method.
func Channels(cfg config.Config, hub *realtime.Hub, logger *logging.Logger) map[string]dispatch.Channel {
	return map[string]dispatch.Channel{
		models.MethodPush:     NewPushChannel(hub, cfg.Dispatch.PushGatewayURL, logger),
		models.MethodSMS:      NewSMSChannel(cfg),
		models.MethodTelegram: NewTelegramChannel(cfg, logger),
	}
}
