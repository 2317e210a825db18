package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/distsys-lab/chordring/internal/ring"
	"github.com/distsys-lab/chordring/internal/telemetry"
	"github.com/distsys-lab/chordring/internal/wire"
)

// Server is the HTTP front end for one ring.Peer: it decodes the §6
// wire contract, drives the peer's ring/lifecycle methods, and
// forwards storage requests that land on the wrong owner.
type Server struct {
	peer       *ring.Peer
	client     *Client
	metrics    *telemetry.Metrics
	log        *zap.SugaredLogger
	httpServer *http.Server
}

// NewServer builds a Server bound to addr, wiring every route in the
// external interface table plus /metrics.
func NewServer(addr string, peer *ring.Peer, client *Client, metrics *telemetry.Metrics, log *zap.SugaredLogger) *Server {
	s := &Server{peer: peer, client: client, metrics: metrics, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	router.HandleFunc("/node-info", s.handleNodeInfo).Methods(http.MethodGet)
	router.HandleFunc("/predecessor", s.handlePredecessor).Methods(http.MethodGet)
	router.HandleFunc("/join", s.handleJoin).Methods(http.MethodPost)
	router.HandleFunc("/leave", s.handleLeave).Methods(http.MethodPost)
	router.HandleFunc("/notify", s.handleNotify).Methods(http.MethodPost)
	router.HandleFunc("/find_successor", s.handleFindSuccessor).Methods(http.MethodPost)
	router.HandleFunc("/update_successor", s.handleUpdateSuccessor).Methods(http.MethodPost)
	router.HandleFunc("/update_predecessor", s.handleUpdatePredecessor).Methods(http.MethodPost)
	router.HandleFunc("/sim-crash", s.handleSimCrash).Methods(http.MethodPost)
	router.HandleFunc("/sim-recover", s.handleSimRecover).Methods(http.MethodPost)
	router.HandleFunc("/storage/{key}", s.handleStorage).Methods(http.MethodGet, http.MethodPut)
	router.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.instrument(router, s.crashMiddleware(router)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// crashMiddleware refuses every route except /sim-recover and /metrics
// while the peer is crashed or has left the ring. A peer that has left
// (and is not crashed) still answers /leave, so a repeated leave gets
// handleLeave's 400 rather than a 503.
func (s *Server) crashMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sim-recover" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Path == "/leave" && s.peer.HasLeft() && !s.peer.Crashed() {
			next.ServeHTTP(w, r)
			return
		}
		if s.peer.Crashed() || s.peer.HasLeft() {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument counts every inbound request by matched route template.
func (s *Server) instrument(router *mux.Router, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		var match mux.RouteMatch
		if router.Match(r, &match) && match.Route != nil {
			if tmpl, err := match.Route.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.RPCRequestsTotal.WithLabelValues(route).Inc()
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until Stop is called or it fails.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// headers are already sent; nothing left to do but log upstream.
		_ = err
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	var predecessor *string
	if pred := s.peer.Predecessor(); pred != nil {
		addr := pred.NodeAddress
		predecessor = &addr
	}
	info := wire.NodeInfo{
		NodeAddress: s.peer.Address(),
		NodeHash:    s.peer.ID(),
		Others:      s.peer.Others(),
		Predecessor: predecessor,
		Successor:   s.peer.Successor().NodeAddress,
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handlePredecessor(w http.ResponseWriter, r *http.Request) {
	pred := s.peer.Predecessor()
	if pred == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	nprime := r.URL.Query().Get("nprime")
	if nprime == "" {
		http.Error(w, "nprime query parameter is required", http.StatusBadRequest)
		return
	}
	if err := s.peer.Join(r.Context(), nprime); err != nil {
		s.log.Warnw("join failed", "nprime", nprime, "error", err)
		http.Error(w, fmt.Sprintf("join failed: %v", err), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "joined via %s", nprime)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.peer.Leave(r.Context()); err != nil {
		status := http.StatusBadRequest
		writeJSON(w, status, wire.LeaveResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wire.LeaveResponse{Message: "left the ring"})
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req wire.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node.NodeAddress == "" {
		http.Error(w, "invalid notify payload", http.StatusBadRequest)
		return
	}
	s.peer.Notify(req.Node)
	writeJSON(w, http.StatusOK, wire.StatusResponse{Status: "success"})
}

func (s *Server) handleFindSuccessor(w http.ResponseWriter, r *http.Request) {
	var req wire.FindSuccessorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid find_successor payload", http.StatusBadRequest)
		return
	}
	resolved := s.peer.FindSuccessor(r.Context(), req.HashedKey)
	writeJSON(w, http.StatusOK, resolved)
}

func (s *Server) handleUpdateSuccessor(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdateSuccessorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Successor == "" {
		http.Error(w, "invalid update_successor payload", http.StatusBadRequest)
		return
	}
	s.peer.SetSuccessor(req.Successor)
	writeJSON(w, http.StatusOK, wire.StatusResponse{Status: "success"})
}

func (s *Server) handleUpdatePredecessor(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdatePredecessorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid update_predecessor payload", http.StatusBadRequest)
		return
	}
	if req.Predecessor == nil {
		s.peer.SetPredecessor("")
	} else {
		s.peer.SetPredecessor(*req.Predecessor)
	}
	writeJSON(w, http.StatusOK, wire.StatusResponse{Status: "success"})
}

func (s *Server) handleSimCrash(w http.ResponseWriter, r *http.Request) {
	s.peer.CrashNode()
	s.log.Infow("simulated crash")
	writeJSON(w, http.StatusOK, wire.StatusResponse{Status: "success"})
}

func (s *Server) handleSimRecover(w http.ResponseWriter, r *http.Request) {
	err := s.peer.RecoverNode(r.Context())
	if errors.Is(err, ring.ErrNotCrashed) {
		http.Error(w, "peer is not crashed", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Warnw("recover failed", "error", err)
		writeJSON(w, http.StatusOK, wire.StatusResponse{Status: "failed", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wire.StatusResponse{Status: "success"})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	switch r.Method {
	case http.MethodGet:
		value, ownerAddr, local, err := s.peer.LookupGet(r.Context(), key)
		if local {
			if errors.Is(err, ring.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, value)
			return
		}
		s.metrics.StorageForwardsTotal.WithLabelValues("get").Inc()
		status, body, ferr := s.client.ForwardGet(r.Context(), ownerAddr, key)
		if ferr != nil {
			s.log.Warnw("storage get forward failed", "owner", ownerAddr, "error", ferr)
			http.Error(w, "forward failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)

	case http.MethodPut:
		value, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		ownerAddr, local := s.peer.LookupPut(r.Context(), key, string(value))
		if local {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.metrics.StorageForwardsTotal.WithLabelValues("put").Inc()
		status, body, ferr := s.client.ForwardPut(r.Context(), ownerAddr, key, value)
		if ferr != nil {
			s.log.Warnw("storage put forward failed", "owner", ownerAddr, "error", ferr)
			http.Error(w, "forward failed", http.StatusBadGateway)
			return
		}
		if status != http.StatusOK {
			// §4.6: a non-200 from the owner is treated as the put
			// failing outright, not relayed verbatim like a GET.
			s.log.Warnw("storage put forward rejected by owner", "owner", ownerAddr, "status", status)
			http.Error(w, fmt.Sprintf("owner rejected put: %s", body), http.StatusBadGateway)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
}
