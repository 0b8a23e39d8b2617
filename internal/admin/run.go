package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/server/config"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/repositories/repomanager"
	"github.com/pmfstudio/reportgate/internal/server/services"
)

// Main opens the configured token store, runs the command in args and
// returns the exit code. Logs go to errOut as text.
func Main(ctx context.Context, c *config.Config, args []string, out, errOut io.Writer) int {
	logger := logging.NewText(errOut, c.LogLevel)

	perms, err := models.ParsePermissions(c.Permissions)
	if err != nil {
		fmt.Fprintln(errOut, "error: config:", err)
		return 1
	}

	store, err := repomanager.Open(ctx, c, logger)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(ctx, "closing token store", "error", err)
		}
	}()

	manager := services.NewTokenManager(store.Store, perms, logger)
	return NewApp(manager, c, out, errOut).Run(ctx, args)
}
