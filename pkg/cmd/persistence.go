package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/file"
	"github.com/dukex/ruleflow/pkg/persistence/memory"
	"github.com/dukex/ruleflow/pkg/persistence/postgresql"
	"github.com/dukex/ruleflow/pkg/persistence/redis"
)

// NewPersistence selects the workflow store backend from the URL scheme. An
// empty URL selects the volatile in-memory store and says so in the log.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, opts persistence.Options) (persistence.Persistence, error) {
	opts = opts.WithDefaults()

	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "":
		logger.WarnContext(ctx, "No store URL configured, workflows are kept in memory and lost on restart")

		return memory.NewPersistence(), nil
	case "memory":
		return memory.NewPersistence(), nil
	case "redis", "rediss":
		return redis.NewPersistenceFromURL(ctx, logger, databaseURL, opts)
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL, opts)
	case "file":
		return file.NewPersistence(logger, databaseURL, opts.Namespace), nil
	default:
		return nil, fmt.Errorf("%w: %q", persistence.ErrUnsupportedBackend, provider)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return ""
	}

	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return databaseURL
	}

	return strings.ToLower(provider)
}
