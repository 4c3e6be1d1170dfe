// Package resetline pulses the sensor's active-low reset input through a
// GPIO line before the node negotiates the serial link.
package resetline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

type Config struct {
	// Chip is a gpiochip path. Empty searches every chip for Line.
	Chip string
	// Line is the line name, e.g. "GPIO17".
	Line   string
	Pulse  time.Duration
	Settle time.Duration
}

// outputLine is the part of a requested GPIO line Pulse needs.
type outputLine interface {
	SetValue(v int) error
	Close() error
}

// Pulse drives the line low for cfg.Pulse, releases it, then waits
// cfg.Settle for the sensor to boot.
func Pulse(ctx context.Context, cfg Config, clk clock.Clock) error {
	if strings.TrimSpace(cfg.Line) == "" {
		return fmt.Errorf("resetline: line is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	line, err := openLineFn(cfg.Chip, cfg.Line)
	if err != nil {
		return err
	}

	if err := line.SetValue(0); err != nil {
		_ = line.Close()
		return fmt.Errorf("resetline: assert %s: %w", cfg.Line, err)
	}
	werr := wait(ctx, clk, cfg.Pulse)
	// Always release, even when canceled, so the sensor is not held in reset.
	if err := line.SetValue(1); err != nil {
		_ = line.Close()
		return fmt.Errorf("resetline: release %s: %w", cfg.Line, err)
	}
	if err := line.Close(); err != nil {
		return fmt.Errorf("resetline: close %s: %w", cfg.Line, err)
	}
	if werr != nil {
		return werr
	}
	return wait(ctx, clk, cfg.Settle)
}

func wait(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}
