package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process logger. prod gets sampled JSON output, everything
// else gets the human console encoder.
func New(env string) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)

	if env == "prod" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return log.With(zap.String("env", env)), nil
}
