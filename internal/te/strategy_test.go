package te

import (
	"testing"

	"github.com/wandsdn/helix/internal/pathengine"
)

func path(n int) pathengine.Path {
	// A path of length n is only used here for its len(); hop contents
	// are irrelevant to the selection functions under test.
	return make(pathengine.Path, n)
}

func TestParseStrategyRejectsUnknown(t *testing.T) {
	if _, ok := ParseStrategy("not_a_strategy"); ok {
		t.Fatalf("expected unknown strategy string to be rejected")
	}
	for _, s := range []string{"first_sol", "best_sol_usage", "best_sol_plen", "cspf_recomp"} {
		if _, ok := ParseStrategy(s); !ok {
			t.Fatalf("expected %q to parse", s)
		}
	}
}

func TestSelectFirstSolPicksFirstStrict(t *testing.T) {
	pots := []candidatePath{
		{path: path(3), maxUsage: 0.5, strictOK: false, validOK: true},
		{path: path(2), maxUsage: 0.6, strictOK: true, validOK: true},
		{path: path(4), maxUsage: 0.1, strictOK: true, validOK: true},
	}
	got, ok := selectFirstSol(Config{}, pots)
	if !ok || len(got) != 2 {
		t.Fatalf("expected the first strictly-valid path (len 2), got ok=%v path=%+v", ok, got)
	}
}

func TestSelectBestSolUsageTightestFitByDefault(t *testing.T) {
	pots := []candidatePath{
		{path: path(1), maxUsage: 0.3, strictOK: true, validOK: true},
		{path: path(2), maxUsage: 0.8, strictOK: true, validOK: true},
	}
	cfg := Config{PotPathSortRev: false}
	got, ok := selectBestSolUsage(cfg, pots)
	if !ok || len(got) != 2 {
		t.Fatalf("expected tightest-fit (highest usage) path chosen, got ok=%v path=%+v", ok, got)
	}
}

func TestSelectBestSolUsageMostHeadroomWhenRev(t *testing.T) {
	pots := []candidatePath{
		{path: path(1), maxUsage: 0.3, strictOK: true, validOK: true},
		{path: path(2), maxUsage: 0.8, strictOK: true, validOK: true},
	}
	cfg := Config{PotPathSortRev: true}
	got, ok := selectBestSolUsage(cfg, pots)
	if !ok || len(got) != 1 {
		t.Fatalf("expected most-headroom (lowest usage) path chosen, got ok=%v path=%+v", ok, got)
	}
}

func TestSelectBestSolPLenTiesBrokenByLength(t *testing.T) {
	pots := []candidatePath{
		{path: path(5), maxUsage: 0.4, strictOK: true, validOK: true},
		{path: path(2), maxUsage: 0.4, strictOK: true, validOK: true},
	}
	got, ok := selectBestSolPLen(Config{}, pots)
	if !ok || len(got) != 2 {
		t.Fatalf("expected shorter path chosen on a usage tie, got ok=%v path=%+v", ok, got)
	}
}

func TestPartialAcceptRejectsWhenNoImprovement(t *testing.T) {
	pots := []candidatePath{
		{path: path(2), maxUsage: 0.95, strictOK: false, validOK: true},
	}
	_, ok := partialAccept(BestSolUsage, Config{}, pots, 0.90)
	if ok {
		t.Fatalf("expected partial to be rejected: it does not reduce max usage below 0.90")
	}
}

func TestPartialAcceptAdmitsWhenItReducesMaxUsage(t *testing.T) {
	pots := []candidatePath{
		{path: path(2), maxUsage: 0.80, strictOK: false, validOK: true},
	}
	got, ok := partialAccept(BestSolUsage, Config{}, pots, 0.90)
	if !ok || len(got) != 2 {
		t.Fatalf("expected partial admitted, got ok=%v path=%+v", ok, got)
	}
}

// TestPartialAcceptHonoursPotPathSortRev reproduces spec.md's S3
// scenario (SRC-s1-(s2|s3|s4)-s5-DST, s1-s2 cap 80Mbps fully used,
// s3-s5 cap 100Mbps, s4-s5 cap 140Mbps, 80Mbps flow): the s3-leg sits
// at 80/100=0.8 usage, the s4-leg at 80/140≈0.571. Neither is
// strictly valid (both exceed tau) but both are valid (under
// capacity). pot_path_sort_rev=false must pick the tighter-fit s3-leg;
// pot_path_sort_rev=true must pick the more-headroom s4-leg.
func TestPartialAcceptHonoursPotPathSortRev(t *testing.T) {
	s3Leg := candidatePath{path: path(3), maxUsage: 80.0 / 100.0, strictOK: false, validOK: true}
	s4Leg := candidatePath{path: path(2), maxUsage: 80.0 / 140.0, strictOK: false, validOK: true}
	pots := []candidatePath{s3Leg, s4Leg}
	const currentMaxUsage = 1.0 // s1-s2 fully saturated

	got, ok := partialAccept(BestSolUsage, Config{PotPathSortRev: false}, pots, currentMaxUsage)
	if !ok || len(got) != len(s3Leg.path) {
		t.Fatalf("pot_path_sort_rev=false: expected s3-leg (tightest fit), got ok=%v path=%+v", ok, got)
	}

	got, ok = partialAccept(BestSolUsage, Config{PotPathSortRev: true}, pots, currentMaxUsage)
	if !ok || len(got) != len(s4Leg.path) {
		t.Fatalf("pot_path_sort_rev=true: expected s4-leg (most headroom), got ok=%v path=%+v", ok, got)
	}
}

func TestPartialAcceptNeverAppliesToFirstSol(t *testing.T) {
	pots := []candidatePath{
		{path: path(1), maxUsage: 0.1, strictOK: false, validOK: true},
	}
	_, ok := partialAccept(FirstSol, Config{}, pots, 0.90)
	if ok {
		t.Fatalf("FirstSol must never admit a partial")
	}
}
