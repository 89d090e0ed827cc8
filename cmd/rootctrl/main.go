// Command rootctrl runs the root controller of the specification's
// hierarchical multi-controller design (§4.H): it holds the inter-area
// link catalogue and answers INTER_AREA_REQ path-stitching requests
// from local controllers over the bus. It holds no switch connections
// of its own. Flag handling follows the teacher's netmaster/main.go
// urfave/cli pattern.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/Sirupsen/logrus"
	"github.com/gorilla/mux"
	"github.com/urfave/cli"

	"github.com/wandsdn/helix/internal/bus"
	"github.com/wandsdn/helix/internal/config"
	"github.com/wandsdn/helix/internal/rootctrl"
	"github.com/wandsdn/helix/internal/topology"
)

const (
	exitConfig = 1
	exitBus    = 2
)

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

// loadCatalogue reads the switch-to-controller map (§6) and derives the
// root's inter-area link catalogue and host-to-area index from it.
// Unlike internal/config.SwitchMapLoader (deployment-specific and
// genuinely external), this is the one concrete place Helix decodes
// the documented JSON shape, because a runnable root binary needs some
// way to seed its catalogue.
func loadCatalogue(path string) (*rootctrl.Catalogue, error) {
	cat := rootctrl.NewCatalogue()
	if path == "" {
		return cat, nil
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

	for areaID, desc := range sm.Controllers {
		for _, host := range desc.Hosts {
			cat.SetHostArea(topology.HostID(host), areaID)
		}
		for neighbour, links := range desc.Domains {
			for _, l := range links {
				cat.AddLink(rootctrl.InterAreaLink{
					AreaA: areaID,
					SwA:   topology.SwitchID(l.Switch),
					PortA: topology.PortNo(l.Port),
					AreaB: neighbour,
					SwB:   topology.SwitchID(l.SwitchTo),
					PortB: topology.PortNo(l.PortTo),
				})
			}
		}
	}
	return cat, nil
}

// debugRouter serves a single health endpoint (/debug/healthz),
// following the teacher's registerRoutes/mux.Router shape; it does not
// expose the catalogue.
func debugRouter(cat *rootctrl.Catalogue) *mux.Router {
	router := mux.NewRouter()
	s := router.Methods("Get").Subrouter()
	s.HandleFunc("/debug/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return router
}

func run(ctx *cli.Context) error {
	if ctx.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	rid := ctx.String("rid")
	if rid == "" {
		return cli.NewExitError("rootctrl: --rid is required", exitConfig)
	}
	topic := ctx.String("topic")
	if topic == "" {
		return cli.NewExitError("rootctrl: --topic is required", exitConfig)
	}

	cat, err := loadCatalogue(ctx.String("switchmap"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("rootctrl: %v", err), exitConfig)
	}

	b, err := buildBus(ctx, rid)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("rootctrl: failed to join bus: %v", err), exitBus)
	}

	root := rootctrl.New(b, topic, cat)
	if err := root.Run(); err != nil {
		return cli.NewExitError(fmt.Sprintf("rootctrl: failed to start: %v", err), exitBus)
	}

	listenAddr := ctx.String("listen")
	server := &http.Server{Handler: debugRouter(cat)}
	server.SetKeepAlivesEnabled(false)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("rootctrl: failed to listen on %s: %v", listenAddr, err), exitConfig)
	}
	go server.Serve(listener)

	log.WithField("rid", rid).WithField("topic", topic).Info("rootctrl: running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	log.Info("rootctrl: shutting down")
	listener.Close()
	root.Stop()
	if err := b.Close(); err != nil {
		log.WithError(err).Warn("rootctrl: error closing bus")
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "rootctrl"
	app.Usage = "Helix root controller"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rid", EnvVar: "HELIX_RID", Usage: "this root controller's id"},
		cli.StringFlag{Name: "topic", EnvVar: "HELIX_ROOT_TOPIC", Usage: "the bus topic every area's local controllers share with this root"},
		cli.StringFlag{Name: "switchmap", EnvVar: "HELIX_SWITCHMAP", Usage: "path to the switch-to-controller map JSON file"},
		cli.StringFlag{Name: "bus", Value: "etcd", EnvVar: "HELIX_BUS", Usage: "bus backend, one of etcd, consul"},
		cli.StringFlag{Name: "bus-endpoints", Value: "http://127.0.0.1:2379", EnvVar: "HELIX_BUS_ENDPOINTS", Usage: "comma-separated etcd endpoints"},
		cli.StringFlag{Name: "bus-addr", Value: "127.0.0.1:8500", EnvVar: "HELIX_BUS_ADDR", Usage: "consul agent address"},
		cli.StringFlag{Name: "listen", Value: ":9300", EnvVar: "HELIX_LISTEN", Usage: "debug/status HTTP server address"},
		cli.BoolFlag{Name: "debug", EnvVar: "HELIX_DEBUG", Usage: "enable debug logging"},
	}
	app.Action = run
	app.Run(os.Args)
}
