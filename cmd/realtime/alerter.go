package main

import (
	"github.com/leesangbok1/vkc-sub001/internal/usecase"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// headlessHost is a daemon host: alerts are always permitted and nothing is ever in the foreground
type headlessHost struct{}

func (headlessHost) PermissionGranted() bool { return true }
func (headlessHost) Backgrounded() bool      { return true }

// logAlerter writes alerts to the log instead of an OS notification center
type logAlerter struct {
	logger *logger.Logger
}

func (a logAlerter) Show(alert usecase.Alert) error {
	a.logger.Info("Alert",
		logger.String("id", alert.ID),
		logger.String("title", alert.Title),
		logger.String("body", alert.Body),
		logger.String("priority", string(alert.Priority)),
		logger.Bool("require_interaction", alert.RequireInteraction),
	)
	return nil
}

func (a logAlerter) Dismiss(id string) {
	a.logger.Debug("Alert dismissed", logger.String("id", id))
}
