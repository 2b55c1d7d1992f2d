package main

import (
	"context"
	"fmt"
	"log/slog"

	custodyservice "aidchain/internal/custody/service"
	custodystore "aidchain/internal/custody/store"
	ledgerservice "aidchain/internal/ledger/service"
	ledgerstore "aidchain/internal/ledger/store"
	"aidchain/internal/platform/config"
	registryservice "aidchain/internal/registry/service"
	registrystore "aidchain/internal/registry/store"
	"aidchain/internal/storage"
	audit "aidchain/pkg/platform/audit"
	auditmemory "aidchain/pkg/platform/audit/store/memory"
	auditsql "aidchain/pkg/platform/audit/store/sqlstore"
)

// backend bundles the stores of every bounded context with the transaction
// runner they share.
type backend struct {
	tx       storage.Tx
	registry registryservice.Store
	ledger   ledgerservice.Store
	custody  custodyservice.Store
	events   audit.Store
	health   func(ctx context.Context) error
	close    func() error
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	var (
		db  *storage.DB
		err error
	)
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store; state is lost on restart")
		return &backend{
			tx:       storage.NewMemoryTx(),
			registry: registrystore.NewInMemoryStore(),
			ledger:   ledgerstore.NewInMemoryStore(),
			custody:  custodystore.NewInMemoryStore(),
			events:   auditmemory.NewInMemoryStore(),
			health:   func(context.Context) error { return nil },
			close:    func() error { return nil },
		}, nil
	case config.StorePostgres:
		db, err = storage.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.StoreSQLite:
		db, err = storage.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if err != nil {
		return nil, err
	}
	log.Info("database ready", "dialect", string(db.Dialect))
	return &backend{
		tx:       db.Tx(),
		registry: registrystore.NewSQLStore(db.SQL),
		ledger:   ledgerstore.NewSQLStore(db.SQL),
		custody:  custodystore.NewSQLStore(db.SQL),
		events:   auditsql.New(db.SQL),
		health:   db.SQL.PingContext,
		close:    db.Close,
	}, nil
}
