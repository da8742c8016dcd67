package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/veltapay/paybot/core/config"
	"github.com/veltapay/paybot/core/logger"
)

// Options control the bootstrap pipeline. Connect must open and verify the
// session store connection; a failure here aborts startup.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coreconfig.RedisConfig) (*redis.Client, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Redis *redis.Client
}

// Run initializes the logger and connects to the session store.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if opts.Connect == nil {
		return nil, fmt.Errorf("bootstrap: Connect is required")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	rdb, err := opts.Connect(opts.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: session store initialization failed: %w", err)
	}

	return &Result{Redis: rdb}, nil
}
