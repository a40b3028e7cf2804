package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/adapters/memory"
	"github.com/personahire/tokenmeter/adapters/sqlite"
	"github.com/personahire/tokenmeter/app"
	"github.com/personahire/tokenmeter/config"
	"github.com/personahire/tokenmeter/ports"
)

// openGateway opens the configured store for offline CLI commands. The
// returned closer is a no-op for the memory driver.
func openGateway(cfg *config.Config) (*app.Gateway, func(), error) {
	var store ports.KVStore
	closer := func() {}

	switch cfg.Storage.Driver {
	case "memory":
		store = memory.NewKVStore()
	default:
		db, err := sqlite.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		store = sqlite.NewKVStore(db)
		closer = func() { db.Close() }
	}

	gw := app.NewGateway(store, zerolog.Nop(), nil,
		app.WithMaxEvents(cfg.Storage.MaxEvents),
		app.WithSaveTimeout(cfg.Storage.SaveTimeout),
	)
	return gw, closer, nil
}
