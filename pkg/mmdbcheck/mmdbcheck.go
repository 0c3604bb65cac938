// Package mmdbcheck spot-checks a compiled MaxMind database that was
// enriched with AS organization data. Random IPv4 and IPv6 addresses are
// looked up until enough records with a country are found, and every
// autonomous_system_* field on those records must have the right type.
package mmdbcheck

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"net"
	"time"

	"github.com/oschwald/maxminddb-golang"

	"github.com/eunmann/asorg-db/pkg/logging"
)

var (
	// ErrTooFewHits means sampling ended before enough records were found.
	ErrTooFewHits = errors.New("too few records found")
	// ErrFieldType means an autonomous_system_* field has the wrong type.
	ErrFieldType = errors.New("field has wrong type")
)

var (
	stringFields = []string{
		"autonomous_system_country",
		"autonomous_system_name",
		"autonomous_system_organization",
	}
	integerFields = []string{
		"autonomous_system_number",
	}
)

// Config controls sampling.
type Config struct {
	// IPv4Attempts and IPv6Attempts cap the lookups per family.
	IPv4Attempts int
	IPv6Attempts int
	// MinHits is the number of records with a country each family must
	// exceed.
	MinHits int
	// Seed makes sampling reproducible. Zero picks a time-based seed.
	Seed uint64
}

// DefaultConfig returns the sampling limits used by the validate command.
func DefaultConfig() Config {
	return Config{
		IPv4Attempts: 100_000,
		IPv6Attempts: 10_000_000,
		MinHits:      100,
	}
}

// Result reports sampling for one address family.
type Result struct {
	Family        string
	Attempts      int
	Hits          int
	MissingFields int
}

type lookuper interface {
	Lookup(ip net.IP, result any) error
}

// Validate opens the database at path and samples both address families.
func Validate(path string, cfg Config) ([]Result, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	log := logging.WithPhase("validate")
	log.Info().
		Str("path", path).
		Str("database_type", db.Metadata.DatabaseType).
		Uint("ip_version", db.Metadata.IPVersion).
		Uint("node_count", db.Metadata.NodeCount).
		Time("built", time.Unix(int64(db.Metadata.BuildEpoch), 0).UTC()).
		Msg("validating database")

	return check(db, cfg)
}

func check(db lookuper, cfg Config) ([]Result, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var results []Result
	for _, fam := range []struct {
		name     string
		attempts int
		next     func(*rand.Rand) net.IP
	}{
		{"ipv4", cfg.IPv4Attempts, randomIPv4},
		{"ipv6", cfg.IPv6Attempts, randomIPv6},
	} {
		res, err := sample(db, fam.name, fam.attempts, cfg.MinHits, func() net.IP { return fam.next(rng) })
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func sample(db lookuper, family string, attempts, minHits int, next func() net.IP) (Result, error) {
	log := logging.WithPhase("validate")
	res := Result{Family: family}

	for res.Attempts < attempts && res.Hits <= minHits {
		res.Attempts++
		ip := next()

		var rec map[string]any
		if err := db.Lookup(ip, &rec); err != nil {
			return res, fmt.Errorf("lookup %s: %w", ip, err)
		}
		if _, ok := rec["country"]; !ok {
			continue
		}
		res.Hits++

		missing, err := checkRecord(rec)
		if err != nil {
			return res, fmt.Errorf("%s: %w", ip, err)
		}
		if len(missing) > 0 {
			res.MissingFields += len(missing)
			log.Debug().Str("ip", ip.String()).Strs("missing", missing).Msg("record lacks AS fields")
		}
	}

	log.Info().
		Str("family", family).
		Int("attempts", res.Attempts).
		Int("hits", res.Hits).
		Int("missing_fields", res.MissingFields).
		Msg("sampling done")

	if res.Hits <= minHits {
		return res, fmt.Errorf("%w: %s had %d hits in %d lookups, need more than %d",
			ErrTooFewHits, family, res.Hits, res.Attempts, minHits)
	}
	return res, nil
}

// checkRecord returns the absent autonomous_system_* fields and fails on
// any present field of the wrong type.
func checkRecord(rec map[string]any) (missing []string, err error) {
	for _, k := range stringFields {
		v, ok := rec[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		if _, ok := v.(string); !ok {
			return nil, fmt.Errorf("%w: %s is %T, want string", ErrFieldType, k, v)
		}
	}
	for _, k := range integerFields {
		v, ok := rec[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		switch v.(type) {
		case uint64, int, *big.Int:
		default:
			return nil, fmt.Errorf("%w: %s is %T, want integer", ErrFieldType, k, v)
		}
	}
	return missing, nil
}

// randomIPv4 picks an address in [1.0.0.0, 255.255.255.255].
func randomIPv4(rng *rand.Rand) net.IP {
	const lo = 1 << 24
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, lo+rng.Uint32N(1<<32-lo))
	return ip
}

// randomIPv6 picks an address at or above ::1:0:0, the range where an
// integer no longer maps to an IPv4 address.
func randomIPv6(rng *rand.Rand) net.IP {
	ip := make(net.IP, net.IPv6len)
	for {
		hi, lo := rng.Uint64(), rng.Uint64()
		if hi == 0 && lo < 1<<32 {
			continue
		}
		binary.BigEndian.PutUint64(ip[:8], hi)
		binary.BigEndian.PutUint64(ip[8:], lo)
		return ip
	}
}
