package usecase

import (
	"time"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
)

// HostState describes the environment a local alert would be shown in
type HostState interface {
	// PermissionGranted reports whether the user allowed local alerts
	PermissionGranted() bool

	// Backgrounded reports whether the host page or window is currently hidden
	Backgrounded() bool
}

// Alert is a request to show an OS-level notification
type Alert struct {
	ID                 string
	Title              string
	Body               string
	Priority           entity.Priority
	Data               map[string]string
	RequireInteraction bool
	AutoDismissAfter   time.Duration
	Silent             bool
	Vibrate            bool
}

// Alerter shows and dismisses local alerts
type Alerter interface {
	Show(alert Alert) error
	Dismiss(id string)
}

// Settings are the user's alert preferences
type Settings struct {
	SoundEnabled     bool
	VibrationEnabled bool
}

// DefaultSettings enables sound and vibration
func DefaultSettings() Settings {
	return Settings{SoundEnabled: true, VibrationEnabled: true}
}

// ShouldAlert reports whether n deserves a local alert: alerts must be enabled, permission
// granted, the host backgrounded, and the priority above low.
func ShouldAlert(n entity.Notification, host HostState, opts DisplayOptions) bool {
	if !opts.EnableNotifications || host == nil {
		return false
	}
	return host.PermissionGranted() && host.Backgrounded() && n.Priority != entity.PriorityLow
}

// BuildAlert shapes the alert for n. High priority alerts stay until dismissed by the user.
func BuildAlert(n entity.Notification, settings Settings, dismissAfter time.Duration) Alert {
	a := Alert{
		ID:       n.ID,
		Title:    n.Title,
		Body:     n.Message,
		Priority: n.Priority,
		Data:     n.Data,
		Silent:   !settings.SoundEnabled,
		Vibrate:  settings.VibrationEnabled,
	}

	if n.Priority == entity.PriorityHigh {
		a.RequireInteraction = true
	} else {
		a.AutoDismissAfter = dismissAfter
	}
	return a
}
