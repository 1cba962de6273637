package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/ErlanBelekov/catalog-access/internal/catalog"
	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/catalog-access/internal/repository"
)

type manageConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	CatalogDir  string `env:"CATALOG_DIR" envDefault:"./catalog"`
}

type packageValidator interface {
	ValidateIDs(ids []string) ([]string, error)
	ListPackages() ([]domain.PackageDefinition, error)
	LookupMaps() (products, prices map[string]string, err error)
}

type deps struct {
	users   repository.UserRepository
	catalog packageValidator
	logger  *slog.Logger
	close   func()
}

// depsOpener builds the dependencies a subcommand needs. Tests swap it.
type depsOpener func(ctx context.Context) (*deps, error)

func loadConfig() (*manageConfig, error) {
	cfg := &manageConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func openDeps(ctx context.Context) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	d := &deps{
		users:  postgres.NewUserRepository(pool),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		close:  pool.Close,
	}
	// Only package validation needs the catalog; listing users works without it.
	if cat, err := catalog.New(cfg.CatalogDir); err == nil {
		d.catalog = cat
	}
	return d, nil
}
