package cli

import (
	"context"
	"errors"
	"flag"

	"github.com/eunmann/asorg-db/internal/config"
	"github.com/eunmann/asorg-db/pkg/mmdbcheck"
)

func runValidate(_ context.Context, cfg *config.Config, args []string) error {
	def := mmdbcheck.DefaultConfig()

	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	dbPath := fs.String("db", "", "path to the .mmdb file")
	fs.IntVar(&def.MinHits, "min-hits", def.MinHits, "records per address family that must be exceeded")
	fs.IntVar(&def.IPv4Attempts, "ipv4-attempts", def.IPv4Attempts, "maximum IPv4 lookups")
	fs.IntVar(&def.IPv6Attempts, "ipv6-attempts", def.IPv6Attempts, "maximum IPv6 lookups")
	fs.Uint64Var(&def.Seed, "seed", 0, "sampling seed (0 = random)")
	logs := addLogFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("--db is required")
	}
	logs.init()

	_, err := mmdbcheck.Validate(*dbPath, def)
	return err
}
