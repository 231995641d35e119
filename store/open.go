package store

import (
	"context"
	"fmt"

	"github.com/AnTengye/contracthub/config"
	"github.com/AnTengye/contracthub/pkg/logger"
)

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		logger.Info(ctx, "using in-memory store")
		return NewMemoryStore(), nil
	case config.StorePostgres:
		s, err := OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "using postgres store", "max_open_conns", cfg.MaxOpenConns)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
