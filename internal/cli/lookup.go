package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/eunmann/asorg-db/internal/config"
	"github.com/eunmann/asorg-db/pkg/asorg"
	"github.com/eunmann/asorg-db/pkg/snapshot"
)

func runLookup(_ context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	mapPath := fs.String("map", "", "path to all_as_org_map.json")
	asnArg := fs.String("asn", "", "AS number, with or without the AS prefix")
	day := fs.String("day", "", "day to resolve the owner for (YYYYMMDD, default newest)")
	logs := addLogFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mapPath == "" {
		return errors.New("--map is required")
	}
	if *asnArg == "" {
		return errors.New("--asn is required")
	}
	asn, err := parseASN(*asnArg)
	if err != nil {
		return err
	}
	if *day != "" && !snapshot.ValidDay(*day) {
		return fmt.Errorf("--day: invalid day %q", *day)
	}
	logs.init()

	f, err := os.Open(*mapPath)
	if err != nil {
		return err
	}
	defer f.Close()
	m, err := asorg.ReadJSON(f)
	if err != nil {
		return err
	}

	owner, _ := asorg.Lookup(m, asn, *day)
	fmt.Fprintf(stdout, "AS%d\t%s\t%s\t%s\t%s\n", asn, owner.OrgName, owner.Country, owner.AutName, owner.Changed)
	return nil
}

func parseASN(s string) (uint32, error) {
	digits := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "AS")
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("--asn: invalid AS number %q", s)
	}
	return uint32(n), nil
}
