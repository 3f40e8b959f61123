// Package stripe configures the process-wide Stripe SDK from config.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/shopledger-backend/pkg/config"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

const (
	TestEnv = "test"
	LiveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", TestEnv, LiveEnv)
)

// Client records which Stripe mode the process was configured for. The SDK
// resource packages read the package-level key, so only one Client is
// meaningful per process.
type Client struct {
	environment string
}

// NewClient validates that the key's mode matches the configured
// environment, then installs the key and routes SDK logs through logg.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	if env != TestEnv && env != LiveEnv {
		return nil, errInvalidStripeEnv
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	if mode := keyMode(key); mode != env {
		return nil, fmt.Errorf("stripe environment %q cannot use a %s key", env, describeMode(mode))
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "shopledger-backend"})
	if logg != nil {
		stripe.DefaultLeveledLogger = &leveledLogger{ctx: logg.WithField(ctx, "component", "stripe"), logg: logg}
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe configured")
	}
	return &Client{environment: env}, nil
}

// keyMode reads test or live from a secret (sk_) or restricted (rk_) key.
func keyMode(key string) string {
	for _, prefix := range []string{"sk_", "rk_"} {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(rest, TestEnv+"_"):
			return TestEnv
		case strings.HasPrefix(rest, LiveEnv+"_"):
			return LiveEnv
		}
	}
	return ""
}

func describeMode(mode string) string {
	if mode == "" {
		return "non-secret"
	}
	return mode
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// IsLive reports whether the client charges real cards.
func (c *Client) IsLive() bool {
	return c.Environment() == LiveEnv
}

// leveledLogger satisfies stripe.LeveledLoggerInterface.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logg.Error(l.ctx, fmt.Sprintf(format, v...), nil)
}
