package steps

import (
	"context"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/dp-fileshare-steps/fixtures"
)

// External holds the dependencies shared by every scenario of a run.
type External struct {
	Config *config.Config
	Store  *fixtures.ObjectStore
}

// NewExternal builds the shared dependencies described by cfg. The object
// store is only created when one is configured.
func NewExternal(ctx context.Context, cfg *config.Config) (*External, error) {
	store, err := fixtures.NewS3ObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &External{Config: cfg, Store: store}, nil
}

// Opener returns the fixture opener uploads read their sources from.
func (e *External) Opener() *fixtures.Opener {
	return &fixtures.Opener{Dir: e.Config.FixturesDir, Store: e.Store}
}
