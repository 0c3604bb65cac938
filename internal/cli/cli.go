// Package cli implements the command-line interface for asorg-db.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eunmann/asorg-db/internal/config"
	"github.com/eunmann/asorg-db/pkg/logging"
)

const usage = `usage: asorg-db <command> [options]
commands:
  build     fold daily snapshots into all_as_org_map.json
  lookup    print the owner of an ASN on a given day
  sync      mirror snapshot files from S3 into the cache dir
  publish   upload build outputs to S3
  validate  spot-check a compiled .mmdb database`

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	var cmd func(context.Context, *config.Config, []string) error
	switch args[0] {
	case "build":
		cmd = runBuild
	case "lookup":
		cmd = runLookup
	case "sync":
		cmd = runSync
	case "publish":
		cmd = runPublish
	case "validate":
		cmd = runValidate
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd(ctx, cfg, args[1:])
}

// logFlags registers the logging flags shared by every command.
type logFlags struct {
	debug *bool
	human *bool
}

func addLogFlags(fs *flag.FlagSet, cfg *config.Config) logFlags {
	return logFlags{
		debug: fs.Bool("debug", cfg.LogDebug, "enable debug logging"),
		human: fs.Bool("human", cfg.LogHuman, "human-readable console logs"),
	}
}

func (l logFlags) init() {
	logging.Init(*l.debug, *l.human)
}

// s3Default renders the configured bucket and prefix as an s3:// URI, or ""
// when no bucket is configured.
func s3Default(bucket, prefix string) string {
	if bucket == "" {
		return ""
	}
	return "s3://" + bucket + "/" + prefix
}
