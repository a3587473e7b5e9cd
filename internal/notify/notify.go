// Package notify delivers popup alerts to the operator's desktop.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andreddluiz/shiftflow/internal/rules"
)

// Notifier shows threshold alerts to the operator.
type Notifier interface {
	Notify(alert rules.Alert) error
}

// Desktop delivers alerts via the platform notification mechanism. On
// macOS it shells out to osascript; elsewhere it logs the alert, which
// keeps headless stations and CI usable.
type Desktop struct {
	logger  *zap.Logger
	timeout time.Duration
}

func NewDesktop(logger *zap.Logger) *Desktop {
	return &Desktop{
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (d *Desktop) Notify(alert rules.Alert) error {
	if runtime.GOOS != "darwin" {
		d.logger.Info("alert",
			zap.String("level", string(alert.Level)),
			zap.String("title", alert.Title),
			zap.String("message", alert.Message))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	script := fmt.Sprintf("display notification %q with title %q",
		sanitize(alert.Message), sanitize(alert.Title))
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, `"`, `'`)
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// Silent swallows all alerts. Used when notifications are disabled in
// config and in tests.
type Silent struct{}

func (Silent) Notify(rules.Alert) error { return nil }
