// Package httpapi exposes the debug/status HTTP surface backing the
// SIGUSR1 snapshot (§4.F, §6): candidate state, cluster role, and the
// link-usage table, read-only and served alongside the control task
// rather than through it (handlers only ever call exported, already
// synchronised accessors). It follows the shape of the teacher's
// netmaster/daemon/daemon.go registerRoutes/runLeader: a mux.Router
// built once, wired into an *http.Server, served on a listener the
// caller owns.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"

	log "github.com/Sirupsen/logrus"
	"github.com/gorilla/mux"

	"github.com/wandsdn/helix/internal/cluster"
	"github.com/wandsdn/helix/internal/controller"
)

// Server holds the collaborators the debug surface reads from. Election
// is optional: a root-less deployment (or a controller not yet wired to
// an Election) simply reports no role information.
type Server struct {
	Controller *controller.Controller
	Election   *cluster.Election

	listener net.Listener
	httpSrv  *http.Server
}

// NewServer creates a debug server over ctrl and, optionally, election.
func NewServer(ctrl *controller.Controller, election *cluster.Election) *Server {
	return &Server{Controller: ctrl, Election: election}
}

// Router builds the mux.Router exposing every debug route. Exported so
// callers can embed it alongside other routes (matching registerRoutes
// taking a *mux.Router in the teacher).
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	get := router.Methods("Get").Subrouter()

	get.HandleFunc("/debug/snapshot", s.handleSnapshot)
	get.HandleFunc("/debug/role", s.handleRole)
	get.HandleFunc("/debug/candidates", s.handleCandidates)
	get.HandleFunc("/debug/usage", s.handleUsage)
	return router
}

// Serve starts an HTTP server bound to addr and runs it in the
// background. Call Stop to close the listener. Mirrors the teacher's
// runLeader: a bare *http.Server, keep-alives disabled, served off a
// listener the caller tracks for clean shutdown.
func (s *Server) Serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.httpSrv = &http.Server{Handler: s.Router()}
	s.httpSrv.SetKeepAlivesEnabled(false)

	log.WithField("addr", addr).Info("httpapi: debug surface listening")
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("httpapi: server exited")
		}
	}()
	return nil
}

// Stop closes the listener, ending Serve's goroutine.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.Controller.Snapshot(true)))
}

type roleResponse struct {
	HaveElection bool   `json:"have_election"`
	IsMaster     bool   `json:"is_master"`
	MasterID     string `json:"master_id"`
	Epoch        uint64 `json:"epoch"`
}

func (s *Server) handleRole(w http.ResponseWriter, r *http.Request) {
	resp := roleResponse{HaveElection: s.Election != nil}
	if s.Election != nil {
		resp.IsMaster = s.Election.IsMaster()
		resp.MasterID = s.Election.MasterID()
		resp.Epoch = s.Election.Epoch()
	}
	writeJSON(w, resp)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Controller.Candidates.All())
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Controller.Graph.Snapshot().AllEdges())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("httpapi: failed to encode response")
	}
}
