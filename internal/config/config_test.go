package config

import (
	"strings"
	"testing"
)

func TestParseAppliesDefaultsForMissingBlocks(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("expected defaults for an empty input, got %+v", cfg)
	}
}

func TestParseDecodesEachBlock(t *testing.T) {
	input := `
[application]
optimise_protection=false
static_port_desc=/etc/helix/ports.csv

[stats]
collect=true
interval=30.0
out_port=true

[multi_ctrl]
start_com=false
domain_id=2

[te]
utilisation_threshold=0.75
opti_method=BestSolUsage
partial_accept=true
`
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Application.OptimiseProtection {
		t.Fatalf("expected optimise_protection=false to stick")
	}
	if cfg.Application.StaticPortDesc != "/etc/helix/ports.csv" {
		t.Fatalf("unexpected static_port_desc: %q", cfg.Application.StaticPortDesc)
	}
	if cfg.Stats.Interval != 30.0 || !cfg.Stats.OutPort {
		t.Fatalf("unexpected stats block: %+v", cfg.Stats)
	}
	if cfg.MultiCtrl.StartCom || cfg.MultiCtrl.DomainID != 2 {
		t.Fatalf("unexpected multi_ctrl block: %+v", cfg.MultiCtrl)
	}
	if cfg.TE.UtilisationThreshold != 0.75 || cfg.TE.OptiMethod != BestSolUsage || !cfg.TE.PartialAccept {
		t.Fatalf("unexpected te block: %+v", cfg.TE)
	}
	// Fields left unset in [te] keep their defaults.
	if !cfg.TE.CandidateSortRev {
		t.Fatalf("expected candidate_sort_rev default to survive a partial [te] block")
	}
}

func TestParseRejectsOutOfRangeUtilisationThreshold(t *testing.T) {
	_, err := Parse(strings.NewReader("[te]\nutilisation_threshold=1.5\n"))
	if err == nil {
		t.Fatalf("expected an error for utilisation_threshold outside [0,1]")
	}
}

func TestParseRejectsUnknownOptiMethod(t *testing.T) {
	_, err := Parse(strings.NewReader("[te]\nopti_method=NotAMethod\n"))
	if err == nil {
		t.Fatalf("expected an error for an unrecognised opti_method")
	}
}

func TestParseRejectsKeyValueOutsideSection(t *testing.T) {
	_, err := Parse(strings.NewReader("collect=true\n"))
	if err == nil {
		t.Fatalf("expected an error for a key/value line outside any section")
	}
}
