// Package httpapi exposes the controller's HTTP surface: /subscribe,
// /unsubscribe, /alert, /deploypod, the supplemented read-only
// /agentstate pull path, and the ambient /healthz and /metrics
// endpoints. Grounded on pkg/agent/health.go's mux-building convention
// and on original_source/Controller/controller.py's log_requests
// middleware and error taxonomy (spec.md §7).
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"arha-controller/pkg/coordinator"
	"arha-controller/pkg/placement"
)

// Server wires the coordinator behind an http.ServeMux.
type Server struct {
	coordinator *coordinator.Coordinator
	mux         *http.ServeMux
}

// New builds a Server with every route registered.
func New(co *coordinator.Coordinator) *Server {
	s := &Server{coordinator: co, mux: http.NewServeMux()}
	s.mux.HandleFunc("/subscribe", s.handleSubscribe)
	s.mux.HandleFunc("/unsubscribe", s.handleUnsubscribe)
	s.mux.HandleFunc("/alert", s.handleAlert)
	s.mux.HandleFunc("/deploypod", s.handleDeployPod)
	s.mux.HandleFunc("/agentstate", s.handleAgentState)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// ServeHTTP implements http.Handler, wrapping every request in the
// request-logging middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logRequests(s.mux).ServeHTTP(w, r)
}

// Start serves the API on addr until ListenAndServe returns an error.
func (s *Server) Start(addr string) error {
	klog.InfoS("starting controller HTTP API", "address", addr)
	return http.ListenAndServe(addr, s)
}

// logRequests mirrors original_source's log_requests middleware: every
// call is logged with its path and the calling agent's IP.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		klog.InfoS("http request received", "path", r.URL.Path, "remoteAddr", r.RemoteAddr)
		next.ServeHTTP(w, r)
		klog.V(1).InfoS("http request handled", "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestIP strips the port from RemoteAddr the way the teacher's
// services derive a caller identity; "IP from connection" per spec.md §6.
func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type subscribeRequest struct {
	IP          string `json:"ip"`
	Port        int    `json:"port"`
	ServiceType string `json:"serviceType"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ServiceType == "" {
		writeError(w, http.StatusBadRequest, "serviceType is required")
		return
	}

	ip := req.IP
	if ip == "" {
		ip = requestIP(r)
	}

	result, err := s.coordinator.Subscribe(r.Context(), ip, req.Port, req.ServiceType)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if result.Rejected {
		writeJSON(w, http.StatusOK, map[string]string{"message": result.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"IP": result.IP, "Port": result.Port, "Frequency": result.Frequency,
	})
}

type unsubscribeRequest struct {
	Port int `json:"port"`
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.coordinator.Unsubscribe(r.Context(), requestIP(r), req.Port); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "unsubscribe finish"})
}

type alertRequest struct {
	AlertType    string          `json:"alertType"`
	AlertContent json.RawMessage `json:"alertContent"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var kind coordinator.AlertKind
	var nodeName, podName string
	switch req.AlertType {
	case string(coordinator.AlertWorkerNodeFailure):
		kind = coordinator.AlertWorkerNodeFailure
		var content struct {
			NodeName string `json:"nodeName"`
		}
		if err := json.Unmarshal(req.AlertContent, &content); err != nil {
			writeError(w, http.StatusBadRequest, "alertContent must carry nodeName")
			return
		}
		nodeName = content.NodeName
	case string(coordinator.AlertPodFailure):
		kind = coordinator.AlertPodFailure
		var content struct {
			PodName string `json:"podName"`
		}
		if err := json.Unmarshal(req.AlertContent, &content); err != nil {
			writeError(w, http.StatusBadRequest, "alertContent must carry podName")
			return
		}
		podName = content.PodName
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown alertType %q", req.AlertType))
		return
	}

	message, err := s.coordinator.Alert(r.Context(), kind, nodeName, podName)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

type deployPodRequest struct {
	NodeName    string `json:"nodeName"`
	HostPort    int    `json:"hostPort"`
	ServiceType string `json:"service_type"`
	Amount      int    `json:"amount"`
}

func (s *Server) handleDeployPod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req deployPodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.NodeName == "" || req.ServiceType == "" {
		writeError(w, http.StatusBadRequest, "nodeName and service_type are required")
		return
	}

	if err := s.coordinator.DeployPod(r.Context(), req.NodeName, req.HostPort, req.ServiceType, req.Amount); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "deploy finish")
}

func (s *Server) handleAgentState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	q := r.URL.Query()
	ip := q.Get("ip")
	if ip == "" {
		ip = requestIP(r)
	}
	var port int
	if _, err := fmt.Sscanf(q.Get("port"), "%d", &port); err != nil {
		writeError(w, http.StatusBadRequest, "port query parameter is required")
		return
	}

	result, found, err := s.coordinator.AgentState(r.Context(), ip, port)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no active subscription for this agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"IP": result.IP, "Port": result.Port, "Frequency": result.Frequency,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// writeInternalError wraps unexpected errors into a 500 with the error
// string in the body; a validation-shaped sentinel (ErrNoCapacity leaking
// through) still maps to 409 since it describes a retryable resource
// conflict rather than an operator/programmer bug.
func writeInternalError(w http.ResponseWriter, err error) {
	if errors.Is(err, placement.ErrNoCapacity) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	klog.ErrorS(err, "http handler failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}
