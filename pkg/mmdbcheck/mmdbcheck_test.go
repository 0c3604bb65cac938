package mmdbcheck

import (
	"errors"
	"math/rand/v2"
	"net"
	"path/filepath"
	"testing"
)

// fakeDB answers every lookup with the same record, or with nothing for
// addresses rejected by match.
type fakeDB struct {
	rec   map[string]any
	match func(net.IP) bool
	calls int
}

func (f *fakeDB) Lookup(ip net.IP, result any) error {
	f.calls++
	if f.match != nil && !f.match(ip) {
		return nil
	}
	out := result.(*map[string]any)
	*out = f.rec
	return nil
}

func goodRecord() map[string]any {
	return map[string]any{
		"country":                        map[string]any{"iso_code": "US"},
		"autonomous_system_country":      "US",
		"autonomous_system_name":         "ACME-AS",
		"autonomous_system_organization": "Acme",
		"autonomous_system_number":       uint64(1234),
	}
}

func TestCheckRecord(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(map[string]any)
		wantMissing int
		wantErr     bool
	}{
		{name: "complete", mutate: func(map[string]any) {}},
		{name: "missing name", mutate: func(r map[string]any) { delete(r, "autonomous_system_name") }, wantMissing: 1},
		{name: "missing number", mutate: func(r map[string]any) { delete(r, "autonomous_system_number") }, wantMissing: 1},
		{name: "int number", mutate: func(r map[string]any) { r["autonomous_system_number"] = 7 }},
		{name: "numeric org", mutate: func(r map[string]any) { r["autonomous_system_organization"] = uint64(1) }, wantErr: true},
		{name: "string number", mutate: func(r map[string]any) { r["autonomous_system_number"] = "1234" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := goodRecord()
			tt.mutate(rec)
			missing, err := checkRecord(rec)
			if tt.wantErr {
				if !errors.Is(err, ErrFieldType) {
					t.Fatalf("err = %v, want ErrFieldType", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(missing) != tt.wantMissing {
				t.Errorf("missing = %v, want %d", missing, tt.wantMissing)
			}
		})
	}
}

func TestCheck_Passes(t *testing.T) {
	db := &fakeDB{rec: goodRecord()}
	res, err := check(db, Config{IPv4Attempts: 1000, IPv6Attempts: 1000, MinHits: 10, Seed: 1})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(res) != 2 || res[0].Family != "ipv4" || res[1].Family != "ipv6" {
		t.Fatalf("results = %+v", res)
	}
	for _, r := range res {
		// Sampling stops as soon as the threshold is exceeded.
		if r.Hits != 11 || r.Attempts != 11 {
			t.Errorf("%s: %+v", r.Family, r)
		}
	}
}

func TestCheck_TooFewHits(t *testing.T) {
	db := &fakeDB{rec: goodRecord(), match: func(ip net.IP) bool { return ip.To4() != nil }}
	res, err := check(db, Config{IPv4Attempts: 100, IPv6Attempts: 50, MinHits: 5, Seed: 2})
	if !errors.Is(err, ErrTooFewHits) {
		t.Fatalf("err = %v, want ErrTooFewHits", err)
	}
	if len(res) != 1 || res[0].Family != "ipv4" {
		t.Errorf("results = %+v", res)
	}
	if db.calls != 6+50 {
		t.Errorf("calls = %d, want 56", db.calls)
	}
}

func TestCheck_NoCountryIsNotAHit(t *testing.T) {
	rec := goodRecord()
	delete(rec, "country")
	_, err := check(&fakeDB{rec: rec}, Config{IPv4Attempts: 20, IPv6Attempts: 20, MinHits: 0, Seed: 3})
	if !errors.Is(err, ErrTooFewHits) {
		t.Fatalf("err = %v, want ErrTooFewHits", err)
	}
}

func TestCheck_BadType(t *testing.T) {
	rec := goodRecord()
	rec["autonomous_system_name"] = 5
	_, err := check(&fakeDB{rec: rec}, Config{IPv4Attempts: 20, IPv6Attempts: 20, MinHits: 1, Seed: 4})
	if !errors.Is(err, ErrFieldType) {
		t.Fatalf("err = %v, want ErrFieldType", err)
	}
}

func TestRandomAddresses(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for range 1000 {
		v4 := randomIPv4(rng)
		if v4.To4() == nil || v4[0] == 0 {
			t.Fatalf("ipv4 out of range: %v", v4)
		}
		v6 := randomIPv6(rng)
		if len(v6) != net.IPv6len {
			t.Fatalf("ipv6 length %d", len(v6))
		}
		allZero := true
		for _, b := range v6[:12] {
			if b != 0 {
				allZero = false
			}
		}
		if allZero {
			t.Fatalf("ipv6 below ::1:0:0: %v", v6)
		}
	}
}

func TestValidate_MissingFile(t *testing.T) {
	if _, err := Validate(filepath.Join(t.TempDir(), "missing.mmdb"), DefaultConfig()); err == nil {
		t.Fatal("expected error")
	}
}
