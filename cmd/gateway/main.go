// Command gateway is a demonstration HTTP front end over the request
// engine: it starts an in-memory httptransport backend for every
// configured node, wires a session against them, and exposes a small
// REST surface driving write/read_latest/remove. It is a demo of the
// wiring, not a production gateway: spec.md excludes the HTTP gateway
// itself from core scope, leaving deployment shape up to callers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"elliptics-go/internal/config"
	"elliptics-go/pkg/callback"
	"elliptics-go/pkg/composite"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/httptransport"
	"elliptics-go/pkg/routing"
	"elliptics-go/pkg/session"
)

func main() {
	path := flag.String("config", "gateway.yaml", "path to gateway config")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gateway: load config:", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	router := routing.NewRouter(cfg.Cluster.Replicas)
	for i, group := range cfg.Session.Groups {
		nodes := shardOwners(cfg.Cluster.Nodes, i, len(cfg.Session.Groups))
		router.SetGroupStates(group, nodes)
	}

	backends, err := startBackends(cfg.Cluster.Nodes)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gateway: start backends:", err)
		os.Exit(1)
	}
	defer func() {
		for _, srv := range backends {
			_ = srv.Stop()
		}
	}()

	client := httptransport.NewClient(router)
	s := session.New(client, dckey.DefaultTransform{})
	s.SetGroups(cfg.Session.Groups)
	s.SetNamespace(cfg.Session.Namespace)
	s.SetTimeout(cfg.Session.Timeout)
	s.SetFilter(cfg.Session.FilterFunc())
	s.SetChecker(cfg.Session.CheckerFunc())

	gw := &gateway{session: s}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           gw.router(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway http server error", "error", err)
		}
	}()
	slog.Info("gateway started", "addr", srv.Addr, "groups", cfg.Session.Groups)

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	slog.Info("gateway stopped")
}

// shardOwners picks a static, round-robin subset of nodes to back
// each group when no live membership feed is configured, per spec.md
// 1's framing of membership/routing as an external collaborator this
// demo stands in for.
func shardOwners(nodes []string, i, total int) []string {
	if len(nodes) == 0 {
		return nil
	}
	return []string{nodes[i%len(nodes)]}
}

// startBackends launches one in-memory httptransport backend+server
// per configured node address, so the demo is runnable without a real
// cluster.
func startBackends(nodes []string) ([]*httptransport.Server, error) {
	var servers []*httptransport.Server
	for _, addr := range nodes {
		port, err := portFromAddr(addr)
		if err != nil {
			return servers, err
		}
		srv := httptransport.NewServer(httptransport.NewBackend(), ":"+port, nil)
		if err := srv.Start(); err != nil {
			return servers, fmt.Errorf("gateway: start backend %s: %w", addr, err)
		}
		servers = append(servers, srv)
	}
	return servers, nil
}

func portFromAddr(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("gateway: parse node address %q: %w", addr, err)
	}
	_, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", fmt.Errorf("gateway: node address %q missing port: %w", addr, err)
	}
	return port, nil
}

// gateway exposes a minimal REST surface over a *session.Session.
type gateway struct {
	session *session.Session
}

func (g *gateway) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", g.handleHealth)
	r.Put("/api/object", g.handleWrite)
	r.Get("/api/object", g.handleRead)
	r.Delete("/api/object", g.handleRemove)
	return r
}

func (g *gateway) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("gateway: encode response failed", "error", err)
	}
}

func (g *gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (g *gateway) handleWrite(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		g.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing key"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result := composite.WriteCAS(r.Context(), g.session, dckey.ByName(key, 0, 0), func([]byte) []byte { return body }, 0, 3)
	if _, err := result.Get(); err != nil {
		g.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (g *gateway) handleRead(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		g.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing key"})
		return
	}

	result := composite.ReadLatest(r.Context(), g.session, dckey.ByName(key, 0, 0), 0, 0)
	entries, err := result.Get()
	if err != nil {
		g.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if len(entries) == 0 {
		g.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entries[0].File)
}

func (g *gateway) handleRemove(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		g.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing key"})
		return
	}

	result := callback.Remove(r.Context(), g.session, dckey.ByName(key, 0, 0))
	if _, err := result.Get(); err != nil {
		g.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
