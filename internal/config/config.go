// Package config implements the local controller configuration of §6:
// bracketed key/value blocks ([application], [stats], [multi_ctrl],
// [te]) decoded into a typed Config, the way the teacher decodes its
// own PluginConfig/InstanceInfo blobs with encoding/json, fed here by a
// small section-scanner rather than a full INI library since the pack
// carries none.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// OptiMethod selects the TE engine's path-selection strategy (§4.E).
type OptiMethod string

const (
	FirstSol     OptiMethod = "FirstSol"
	BestSolUsage OptiMethod = "BestSolUsage"
	BestSolPLen  OptiMethod = "BestSolPLen"
	CSPFRecomp   OptiMethod = "CSPFRecomp"
)

// ApplicationConfig is the [application] block.
type ApplicationConfig struct {
	OptimiseProtection bool   `json:"optimise_protection"`
	StaticPortDesc     string `json:"static_port_desc"`
}

// StatsConfig is the [stats] block.
type StatsConfig struct {
	Collect     bool    `json:"collect"`
	CollectPort bool    `json:"collect_port"`
	Interval    float64 `json:"interval"`
	OutPort     bool    `json:"out_port"`
}

// MultiCtrlConfig is the [multi_ctrl] block.
type MultiCtrlConfig struct {
	StartCom bool `json:"start_com"`
	DomainID int  `json:"domain_id"`
}

// TEConfig is the [te] block.
type TEConfig struct {
	UtilisationThreshold float64    `json:"utilisation_threshold"`
	ConsolidateTime      float64    `json:"consolidate_time"`
	OptiMethod           OptiMethod `json:"opti_method"`
	CandidateSortRev     bool       `json:"candidate_sort_rev"`
	PotPathSortRev       bool       `json:"pot_path_sort_rev"`
	PartialAccept        bool       `json:"partial_accept"`
}

// Config is the complete local controller configuration.
type Config struct {
	Application ApplicationConfig `json:"application"`
	Stats       StatsConfig       `json:"stats"`
	MultiCtrl   MultiCtrlConfig   `json:"multi_ctrl"`
	TE          TEConfig          `json:"te"`
}

// Default returns the configuration with every §6-documented default
// applied, as if every block were empty.
func Default() Config {
	return Config{
		Application: ApplicationConfig{OptimiseProtection: true},
		Stats:       StatsConfig{Collect: true, CollectPort: true, Interval: 10.0},
		MultiCtrl:   MultiCtrlConfig{StartCom: true},
		TE: TEConfig{
			UtilisationThreshold: 0.90,
			ConsolidateTime:      1.0,
			OptiMethod:           FirstSol,
			CandidateSortRev:     true,
		},
	}
}

// ParseFile opens path and parses it as a Config.
func ParseFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads bracketed key/value blocks from r and decodes them onto
// Default(), validating the result against §6's documented ranges and
// enums.
func Parse(r io.Reader) (Config, error) {
	sections, err := scanSections(r)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	if kv, ok := sections["application"]; ok {
		if err := decodeSection(&cfg.Application, kv); err != nil {
			return Config{}, fmt.Errorf("config: [application]: %w", err)
		}
	}
	if kv, ok := sections["stats"]; ok {
		if err := decodeSection(&cfg.Stats, kv); err != nil {
			return Config{}, fmt.Errorf("config: [stats]: %w", err)
		}
	}
	if kv, ok := sections["multi_ctrl"]; ok {
		if err := decodeSection(&cfg.MultiCtrl, kv); err != nil {
			return Config{}, fmt.Errorf("config: [multi_ctrl]: %w", err)
		}
	}
	if kv, ok := sections["te"]; ok {
		if err := decodeSection(&cfg.TE, kv); err != nil {
			return Config{}, fmt.Errorf("config: [te]: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the §6-documented ranges and enum. A configuration
// error is fatal at startup (§7).
func (c Config) Validate() error {
	if c.TE.UtilisationThreshold < 0 || c.TE.UtilisationThreshold > 1 {
		return fmt.Errorf("config: [te] utilisation_threshold must be in [0,1], got %v", c.TE.UtilisationThreshold)
	}
	if c.Stats.Interval < 0.5 || c.Stats.Interval > 600 {
		return fmt.Errorf("config: [stats] interval must be in [0.5,600], got %v", c.Stats.Interval)
	}
	if c.TE.ConsolidateTime >= c.Stats.Interval {
		return fmt.Errorf("config: [te] consolidate_time must be less than [stats] interval %v, got %v", c.Stats.Interval, c.TE.ConsolidateTime)
	}
	switch c.TE.OptiMethod {
	case FirstSol, BestSolUsage, BestSolPLen, CSPFRecomp:
	default:
		return fmt.Errorf("config: [te] opti_method %q is not one of FirstSol, BestSolUsage, BestSolPLen, CSPFRecomp", c.TE.OptiMethod)
	}
	return nil
}

// scanSections turns "[section]\nkey=value" blocks into a flat map of
// maps, tolerating blank lines and "#"-prefixed comments.
func scanSections(r io.Reader) (map[string]map[string]string, error) {
	sections := make(map[string]map[string]string)
	var current string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := sections[current]; !ok {
				sections[current] = make(map[string]string)
			}
			continue
		}
		if current == "" {
			return nil, fmt.Errorf("key/value line %q outside of any [section]", line)
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed line %q in [%s]", line, current)
		}
		sections[current][strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return sections, scanner.Err()
}

// decodeSection infers a JSON-compatible type per value (bool, float,
// else string) and round-trips through encoding/json onto dst, so
// every typed field decodes with the same rules encoding/json already
// applies elsewhere in this codebase.
func decodeSection(dst interface{}, kv map[string]string) error {
	obj := make(map[string]interface{}, len(kv))
	for k, v := range kv {
		obj[k] = inferValue(v)
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func inferValue(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
