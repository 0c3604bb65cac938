// Package benchutil generates synthetic daily AS organization snapshots for
// benchmarks and tests.
package benchutil

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// GeneratorConfig configures synthetic snapshot generation.
type GeneratorConfig struct {
	// NumASNs is the number of ASNs present in every snapshot.
	NumASNs int
	// NumOrgs is the size of the organization pool ASNs are assigned from.
	NumOrgs int
	// Days is the number of snapshots to generate.
	Days int
	// StartDay is the first snapshot day (YYYYMMDD). Default 20120101.
	StartDay string
	// StepDays is the gap between consecutive snapshots. Default 1.
	StepDays int
	// ChurnRate is the probability that an ASN changes owner between two
	// snapshots.
	ChurnRate float64
	// StaleRate is the probability that an ASN also gets an older duplicate
	// line for the same organization, as seen in real registry dumps.
	StaleRate float64
	// Seed for reproducible generation. 0 = BenchmarkSeed.
	Seed int64
}

// DefaultConfig returns a configuration with realistic churn.
func DefaultConfig(numASNs, days int) GeneratorConfig {
	orgs := numASNs / 2
	if orgs < 1 {
		orgs = 1
	}
	return GeneratorConfig{
		NumASNs:   numASNs,
		NumOrgs:   orgs,
		Days:      days,
		StartDay:  "20120101",
		StepDays:  1,
		ChurnRate: 0.002,
		StaleRate: 0.01,
		Seed:      BenchmarkSeed,
	}
}

var (
	countries = []string{"US", "DE", "BR", "JP", "RU", "GB", "CN", "IN", "FR", "ZA", "AU", "NL"}
	sources   = []string{"ARIN", "RIPE", "APNIC", "LACNIC", "AFRINIC", "JPNIC"}
)

// Generator produces a deterministic sequence of snapshots.
type Generator struct {
	cfg     GeneratorConfig
	rng     *rand.Rand
	start   time.Time
	owner   []int    // owner[i] is the org index of ASN i+1
	changed []string // changed[i] is the day ASN i+1 last changed owner
	day     int
}

// NewGenerator creates a new snapshot generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = BenchmarkSeed
	}
	if cfg.StartDay == "" {
		cfg.StartDay = "20120101"
	}
	if cfg.StepDays <= 0 {
		cfg.StepDays = 1
	}
	if cfg.NumOrgs <= 0 {
		cfg.NumOrgs = 1
	}
	start, err := snapshot.ParseDay(cfg.StartDay)
	if err != nil {
		panic(fmt.Sprintf("benchutil: %v", err))
	}

	g := &Generator{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		start:   start,
		owner:   make([]int, cfg.NumASNs),
		changed: make([]string, cfg.NumASNs),
	}
	for i := range g.owner {
		g.owner[i] = g.rng.Intn(cfg.NumOrgs)
		g.changed[i] = cfg.StartDay
	}
	return g
}

// DayAt returns the day of the n-th snapshot.
func (g *Generator) DayAt(n int) string {
	return g.start.AddDate(0, 0, n*g.cfg.StepDays).Format(snapshot.DayLayout)
}

// Next returns the next snapshot's day and text. ok is false once Days
// snapshots have been produced.
func (g *Generator) Next() (day, text string, ok bool) {
	if g.day >= g.cfg.Days {
		return "", "", false
	}
	day = g.DayAt(g.day)
	if g.day > 0 {
		g.churn(day)
	}
	g.day++
	return day, g.render(day), true
}

func (g *Generator) churn(day string) {
	for i := range g.owner {
		if g.rng.Float64() < g.cfg.ChurnRate {
			g.owner[i] = g.rng.Intn(g.cfg.NumOrgs)
			g.changed[i] = day
		}
	}
}

func orgID(n int) string { return fmt.Sprintf("ORG-%05d", n) }

func (g *Generator) render(day string) string {
	var b strings.Builder
	b.WriteString("# name: AS Org\n")
	b.WriteString("# format:org_id|changed|org_name|country|source\n")

	used := make([]bool, g.cfg.NumOrgs)
	for _, o := range g.owner {
		used[o] = true
	}
	for o, ok := range used {
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s|%s|Organization %d|%s|%s\n",
			orgID(o), g.cfg.StartDay, o, countries[o%len(countries)], sources[o%len(sources)])
	}

	b.WriteString("# format:aut|changed|aut_name|org_id|opaque_id|source\n")
	for i, o := range g.owner {
		asn := i + 1
		src := sources[o%len(sources)]
		if g.rng.Float64() < g.cfg.StaleRate {
			fmt.Fprintf(&b, "%d|%s|AS%d-OLD|%s|opaque|%s\n", asn, g.cfg.StartDay, asn, orgID(o), src)
		}
		fmt.Fprintf(&b, "%d|%s|AS%d-NET|%s|opaque|%s\n", asn, g.changed[i], asn, orgID(o), src)
	}
	return b.String()
}

// WriteDir writes every remaining snapshot into dir as
// YYYYMMDD.as-org2info.txt, gzip-compressed when gz is set. It returns the
// days written.
func (g *Generator) WriteDir(dir string, gz bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var days []string
	for {
		day, text, ok := g.Next()
		if !ok {
			return days, nil
		}
		name := day + ".as-org2info.txt"
		if gz {
			name += ".gz"
		}
		if err := writeFile(filepath.Join(dir, name), text, gz); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
}

func writeFile(path, text string, gz bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if gz {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if _, err := io.WriteString(w, text); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return f.Close()
}
