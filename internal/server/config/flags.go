package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/pmfstudio/reportgate/internal/flagx"
)

// ValueFlags lists every flag parseFlags understands. They all take a value,
// which lets callers tell flag values apart from positional arguments.
var ValueFlags = []string{"-a", "-log", "-k", "-f", "-l", "-d", "-u", "-p", "-b", "-g", "-e", "-perms", "-t", "-w", "-c", "-config"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-log string   log level (debug, info, warn, error)
//	-k string     token store backend: file, sqlite, postgres, s3
//	-f string     token file path (file backend)
//	-l string     SQLite database path (sqlite backend)
//	-d string     PostgreSQL DSN (postgres backend)
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-perms string comma-separated permission tags allowed at creation
//	-t int        report link validity, minutes
//	-w string     PMF score weights file
//
// Only these flags are picked out of os.Args, so subcommand flags such as
// "-days" or "-perm" pass through untouched.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-log", "-k", "-f", "-l", "-d", "-u", "-p", "-b", "-g", "-e", "-perms", "-t", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.LogLevel, "log", config.LogLevel, "log level")
	fs.StringVar(&config.StoreBackend, "k", config.StoreBackend, "token store backend (file, sqlite, postgres, s3)")
	fs.StringVar(&config.TokensDBPath, "f", config.TokensDBPath, "token file path")
	fs.StringVar(&config.SQLitePath, "l", config.SQLitePath, "SQLite database path")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	perms := fs.String("perms", strings.Join(config.Permissions, ","), "allowed permission tags")
	linkValidity := fs.Int("t", int(config.ReportLinkValidity.Minutes()), "report link validity (in minutes)")
	fs.StringVar(&config.WeightsPath, "w", config.WeightsPath, "PMF score weights file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// list and duration flags only override when given explicitly
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "perms":
			config.Permissions = splitList(*perms)
		case "t":
			config.ReportLinkValidity = time.Duration(*linkValidity) * time.Minute
		}
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
