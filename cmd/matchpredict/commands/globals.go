package commands

import (
	"context"

	"matchpredict/internal/config"
	"matchpredict/pkg/logger"
)

type globalsKey struct{}

type globals struct {
	cfg *config.Config
	log logger.Logger
}

func setGlobals(ctx context.Context, g *globals) context.Context {
	return context.WithValue(ctx, globalsKey{}, g)
}

func getGlobals(ctx context.Context) *globals {
	return ctx.Value(globalsKey{}).(*globals)
}
