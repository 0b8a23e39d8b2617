package main

import (
	"context"
	"os"

	"github.com/pmfstudio/reportgate/internal/admin"
	"github.com/pmfstudio/reportgate/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	os.Exit(admin.Main(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr))

}
