// Command localctrl runs one local-controller instance of the
// specification's hierarchical multi-controller design (§4.F): it owns
// one area's topology, candidate set, and link-usage table, runs the
// leader-election/heartbeat protocol of §4.G over a shared bus, and
// answers inter-area segment queries from the root controller. It
// follows the shape of the teacher's netmaster/main.go: a single
// urfave/cli action that validates flags, builds the daemon's
// collaborators, and runs until a signal asks it to stop.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/Sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/wandsdn/helix/internal/bus"
	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/cluster"
	"github.com/wandsdn/helix/internal/config"
	"github.com/wandsdn/helix/internal/controller"
	"github.com/wandsdn/helix/internal/httpapi"
	"github.com/wandsdn/helix/internal/protection"
	"github.com/wandsdn/helix/internal/rootctrl"
	"github.com/wandsdn/helix/internal/stats"
	"github.com/wandsdn/helix/internal/te"
	"github.com/wandsdn/helix/internal/timeline"
	"github.com/wandsdn/helix/internal/topology"
)

// exit codes per §6: 0 clean, 1 configuration error, 2 unrecoverable
// bus failure, 3 internal invariant violation.
const (
	exitConfig = 1
	exitBus    = 2
)

// loggingSwitchClient stands in for the real OpenFlow/switch-driver
// connection, which is an external configurable subsystem outside
// Helix's scope (§1). It accepts every install/remove and logs it, so
// a controller is runnable end to end without real switches attached.
type loggingSwitchClient struct{}

func (loggingSwitchClient) InstallGroup(sw topology.NodeID, g protection.Group) error {
	log.WithField("switch", sw).WithField("gid", g.Gid).Debug("switch stub: install group")
	return nil
}
func (loggingSwitchClient) ModifyGroup(sw topology.NodeID, g protection.Group) error {
	log.WithField("switch", sw).WithField("gid", g.Gid).Debug("switch stub: modify group")
	return nil
}
func (loggingSwitchClient) DeleteGroup(sw topology.NodeID, gid candidate.Gid) error {
	log.WithField("switch", sw).WithField("gid", gid).Debug("switch stub: delete group")
	return nil
}
func (loggingSwitchClient) InstallFlow(sw topology.NodeID, f protection.Flow) error {
	log.WithField("switch", sw).WithField("gid", f.Gid).Debug("switch stub: install flow")
	return nil
}
func (loggingSwitchClient) DeleteFlow(sw topology.NodeID, f protection.Flow) error {
	log.WithField("switch", sw).WithField("gid", f.Gid).Debug("switch stub: delete flow")
	return nil
}

// loggingSwitchPoller stands in for the real stats round-trip (§1):
// it reports no samples, so TE sees no utilisation signal until a real
// poller is wired in.
type loggingSwitchPoller struct{}

func (loggingSwitchPoller) PollPorts(sw topology.NodeID) ([]stats.PortCounters, error) {
	return nil, nil
}
func (loggingSwitchPoller) PollFlows(sw topology.NodeID) ([]stats.FlowCounters, error) {
	return nil, nil
}

func optiMethodToStrategy(m config.OptiMethod) (te.Strategy, bool) {
	switch m {
	case config.FirstSol:
		return te.FirstSol, true
	case config.BestSolUsage:
		return te.BestSolUsage, true
	case config.BestSolPLen:
		return te.BestSolPLen, true
	case config.CSPFRecomp:
		return te.CSPFRecomp, true
	default:
		return 0, false
	}
}

func parseSwitches(s string) ([]topology.NodeID, error) {
	if s == "" {
		return nil, nil
	}
	var out []topology.NodeID
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		dpid, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid switch dpid %q: %w", tok, err)
		}
		out = append(out, topology.SwitchID(dpid))
	}
	return out, nil
}

// loadExtraInstances reads the switch-to-controller map (§6) and
// returns this cid's extra_instances list, or nil if no switch map was
// given (a single-instance area, where instance 0 is the only
// configured member).
func loadExtraInstances(path, cid string) ([]uint, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sm config.SwitchMap
	if err := json.NewDecoder(f).Decode(&sm); err != nil {
		return nil, fmt.Errorf("switch map %s: %w", path, err)
	}
	return sm.Controllers[cid].ExtraInstances, nil
}

func buildBus(ctx *cli.Context, senderID string) (bus.Bus, error) {
	switch ctx.String("bus") {
	case "consul":
		return bus.NewConsulBus(ctx.String("bus-addr"), senderID)
	case "etcd":
		endpoints := strings.Split(ctx.String("bus-endpoints"), ",")
		return bus.NewEtcdBus(endpoints, senderID)
	default:
		return nil, fmt.Errorf("unknown bus kind %q, want etcd or consul", ctx.String("bus"))
	}
}

func run(ctx *cli.Context) error {
	if ctx.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	cid := ctx.String("cid")
	if cid == "" {
		return cli.NewExitError("localctrl: --cid is required", exitConfig)
	}
	instance := uint(ctx.Uint("instance"))
	senderID := fmt.Sprintf("%s.%d", cid, instance)

	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		parsed, err := config.ParseFile(path)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("localctrl: %v", err), exitConfig)
		}
		cfg = parsed
	}

	strategy, ok := ctx2RecoveryStrategy(ctx, cfg)
	if !ok {
		return cli.NewExitError(fmt.Sprintf("localctrl: unknown --recovery %q", ctx.String("recovery")), exitConfig)
	}

	teStrategy, ok := optiMethodToStrategy(cfg.TE.OptiMethod)
	if !ok {
		return cli.NewExitError(fmt.Sprintf("localctrl: unknown opti_method %q", cfg.TE.OptiMethod), exitConfig)
	}
	teCfg := te.Config{
		Tau:                cfg.TE.UtilisationThreshold,
		ConsolidationDelay: time.Duration(cfg.TE.ConsolidateTime * float64(time.Second)),
		Strategy:           teStrategy,
		CandidateSortRev:   cfg.TE.CandidateSortRev,
		PotPathSortRev:     cfg.TE.PotPathSortRev,
		PartialAccept:      cfg.TE.PartialAccept,
	}

	switches, err := parseSwitches(ctx.String("switches"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("localctrl: %v", err), exitConfig)
	}

	b, err := buildBus(ctx, senderID)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("localctrl: failed to join bus: %v", err), exitBus)
	}

	pollInterval := time.Duration(cfg.Stats.Interval * float64(time.Second))

	installer := protection.NewInstaller(loggingSwitchClient{})
	ctrl := controller.New(strategy, teCfg, installer, topology.UnitWeight, pollInterval)

	rec := timeline.NewRecorder(os.Stdout)
	ctrl.UseTimeline(rec, cid, true, instance)

	election := cluster.New(b, cid, senderID)
	election.UseTimeline(rec, cid, true, instance)

	extraInstances, err := loadExtraInstances(ctx.String("switchmap"), cid)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("localctrl: %v", err), exitConfig)
	}
	election.UseIDSpace(cluster.NewIDSpace(extraInstances), instance)

	areaAgent := rootctrl.NewAreaAgent(b, cid, ctrl.Graph, topology.UnitWeight)

	// A root topic means this area has inter-area links. The client is
	// created here only so it subscribes for root replies on this
	// area's topic; the returned Client is not kept, so this process
	// issues no stitched-path requests of its own.
	if rootTopic := ctx.String("root-topic"); rootTopic != "" {
		if _, err := rootctrl.NewClient(b, rootTopic, cid); err != nil {
			return cli.NewExitError(fmt.Sprintf("localctrl: failed to subscribe for root replies: %v", err), exitBus)
		}
	}

	collector := stats.New(loggingSwitchPoller{}, pollInterval, cfg.Stats.CollectPort)
	go func() {
		for ev := range collector.Ready() {
			ctrl.SubmitStatsReady(ev)
		}
	}()

	debugSrv := httpapi.NewServer(ctrl, election)
	if err := debugSrv.Serve(ctx.String("listen")); err != nil {
		return cli.NewExitError(fmt.Sprintf("localctrl: failed to start debug server: %v", err), exitConfig)
	}

	ctrl.Run()
	if err := election.Run(); err != nil {
		return cli.NewExitError(fmt.Sprintf("localctrl: failed to start election: %v", err), exitBus)
	}
	if err := areaAgent.Run(); err != nil {
		return cli.NewExitError(fmt.Sprintf("localctrl: failed to start area agent: %v", err), exitBus)
	}
	collector.Start(switches)

	log.WithField("cid", senderID).Info("localctrl: running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGTERM, syscall.SIGINT)
	for sig := range sigCh {
		if sig == syscall.SIGUSR1 {
			fmt.Fprint(os.Stdout, ctrl.Snapshot(true))
			continue
		}
		break
	}

	log.Info("localctrl: shutting down")
	if err := installer.RemoveAll(); err != nil {
		log.WithError(err).Warn("localctrl: error while uninstalling protection rules")
	}
	collector.Stop()
	areaAgent.Stop()
	election.Stop()
	ctrl.Stop()
	if err := debugSrv.Stop(); err != nil {
		log.WithError(err).Warn("localctrl: error stopping debug server")
	}
	if err := b.Close(); err != nil {
		log.WithError(err).Warn("localctrl: error closing bus")
	}
	return nil
}

// ctx2RecoveryStrategy resolves the effective RecoveryStrategy: an
// explicit --recovery flag wins, otherwise it is derived from
// [application] optimise_protection (§6).
func ctx2RecoveryStrategy(ctx *cli.Context, cfg config.Config) (controller.RecoveryStrategy, bool) {
	if s := ctx.String("recovery"); s != "" {
		return controller.ParseRecoveryStrategy(s)
	}
	if cfg.Application.OptimiseProtection {
		return controller.ProtectionStrict, true
	}
	return controller.Reactive, true
}

func main() {
	app := cli.NewApp()
	app.Name = "localctrl"
	app.Usage = "Helix local controller"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "cid", EnvVar: "HELIX_CID", Usage: "this controller's area/cluster id"},
		cli.UintFlag{Name: "instance", EnvVar: "HELIX_INSTANCE", Usage: "this instance's numeric id within the area (0 is always configured)"},
		cli.StringFlag{Name: "config", EnvVar: "HELIX_CONFIG", Usage: "path to the local controller configuration file"},
		cli.StringFlag{Name: "switchmap", EnvVar: "HELIX_SWITCHMAP", Usage: "path to the switch-to-controller map JSON file, for this area's extra_instances"},
		cli.StringFlag{Name: "bus", Value: "etcd", EnvVar: "HELIX_BUS", Usage: "bus backend, one of etcd, consul"},
		cli.StringFlag{Name: "bus-endpoints", Value: "http://127.0.0.1:2379", EnvVar: "HELIX_BUS_ENDPOINTS", Usage: "comma-separated etcd endpoints"},
		cli.StringFlag{Name: "bus-addr", Value: "127.0.0.1:8500", EnvVar: "HELIX_BUS_ADDR", Usage: "consul agent address"},
		cli.StringFlag{Name: "root-topic", EnvVar: "HELIX_ROOT_TOPIC", Usage: "root controller's bus topic, if this area has inter-area links"},
		cli.StringFlag{Name: "switches", EnvVar: "HELIX_SWITCHES", Usage: "comma-separated switch dpids to poll for stats"},
		cli.StringFlag{Name: "recovery", EnvVar: "HELIX_RECOVERY", Usage: "recovery strategy override: reactive, protection_strict, protection_loose_splice"},
		cli.StringFlag{Name: "listen", Value: ":9200", EnvVar: "HELIX_LISTEN", Usage: "debug/status HTTP server address"},
		cli.BoolFlag{Name: "debug", EnvVar: "HELIX_DEBUG", Usage: "enable debug logging"},
	}
	app.Action = run
	app.Run(os.Args)
}
