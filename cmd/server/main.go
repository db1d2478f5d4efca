package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "tiletown.ai/internal/persistence/log"
	"tiletown.ai/internal/persistence/profiles"
	"tiletown.ai/internal/sim/brain"
	"tiletown.ai/internal/sim/tuning"
	"tiletown.ai/internal/sim/world"
	"tiletown.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "town_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the avatar profiles store")

		decisionURL       = flag.String("decision_url", "", "external decision service url (empty: local brain only)")
		decisionTimeoutMs = flag.Int("decision_timeout_ms", 2000, "decision service request timeout")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	cfg := tune.WorldConfig()
	if cfg.ID == "" {
		cfg.ID = *worldID
	}
	if cfg.Seed == 0 {
		cfg.Seed = *seed
	}
	w, err := world.New(cfg)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	for i, cell := range tune.WallCells() {
		id := fmt.Sprintf("wall-%d", i)
		if _, _, err := w.AddEntity(id, world.KindWall, "", cell); err != nil {
			logger.Fatalf("wall %s at %v: %v", id, cell, err)
		}
	}

	// Profiles store: avatar identity plus last-known positions, so robots
	// resume where they stood.
	var store *profiles.Store
	if !*disableDB {
		store, err = profiles.Open(filepath.Join(worldDir, "profiles.db"))
		if err != nil {
			logger.Fatalf("open profiles store: %v", err)
		}
		defer store.Close()
		w.SetPositionSink(store.PositionSink())
	}

	if err := seedRobots(w, store, tune, logger); err != nil {
		logger.Fatalf("seed robots: %v", err)
	}

	// Robot brains: local utility engine, optionally fronted by an external
	// decision service.
	var decider world.Decider = brain.NewEngine(brain.Config{ConversationRadius: cfg.ConversationRadius}, cfg.Seed)
	if u := strings.TrimSpace(*decisionURL); u != "" {
		decider = brain.NewRemoteDecider(u, time.Duration(*decisionTimeoutMs)*time.Millisecond, decider, logger)
		logger.Printf("decision service: %s", u)
	}
	w.SetDecider(decider)

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	w.SetTickLogger(tickLog)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()

		fmt.Fprintf(rw, "# HELP tiletown_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE tiletown_world_tick gauge\n")
		fmt.Fprintf(rw, "tiletown_world_tick{world=%q} %d\n", *worldID, m.Tick)

		fmt.Fprintf(rw, "# HELP tiletown_world_entities Current number of entities in the world.\n")
		fmt.Fprintf(rw, "# TYPE tiletown_world_entities gauge\n")
		fmt.Fprintf(rw, "tiletown_world_entities{world=%q} %d\n", *worldID, m.Entities)

		fmt.Fprintf(rw, "# HELP tiletown_world_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE tiletown_world_clients gauge\n")
		fmt.Fprintf(rw, "tiletown_world_clients{world=%q} %d\n", *worldID, m.Clients)

		fmt.Fprintf(rw, "# HELP tiletown_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE tiletown_world_step_ms gauge\n")
		fmt.Fprintf(rw, "tiletown_world_step_ms{world=%q} %.3f\n", *worldID, m.StepMS)

		fmt.Fprintf(rw, "# HELP tiletown_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE tiletown_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "tiletown_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "inbox", m.Inbox)
	})

	if envBool("TT_ENABLE_ADMIN_HTTP", true) {
		// Local-only state endpoint for operators.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		if store != nil {
			registerAvatarRoutes(mux, store)
		}
	}
	if envBool("TT_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// registerAvatarRoutes exposes profile CRUD to local operators: identity
// fields only, kinematic columns stay owned by the position writer.
func registerAvatarRoutes(mux *http.ServeMux, store *profiles.Store) {
	mux.HandleFunc("/admin/v1/avatars", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		switch r.Method {
		case http.MethodGet:
			avatars, err := store.ListAvatars()
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(avatars)
		case http.MethodPost, http.MethodPut:
			var a profiles.Avatar
			if err := json.NewDecoder(r.Body).Decode(&a); err != nil || a.ID == "" {
				http.Error(rw, "bad avatar payload", http.StatusBadRequest)
				return
			}
			if err := store.UpsertAvatar(a); err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.WriteHeader(http.StatusNoContent)
		default:
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/admin/v1/avatars/", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/admin/v1/avatars/")
		if id == "" {
			http.Error(rw, "missing avatar id", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			a, ok, err := store.GetAvatar(id)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(rw, "not found", http.StatusNotFound)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(a)
		case http.MethodDelete:
			if err := store.DeleteAvatar(id); err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.WriteHeader(http.StatusNoContent)
		default:
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// seedRobots places every configured robot into the world, preferring the
// position persisted in the profiles store over the tuning default.
func seedRobots(w *world.World, store *profiles.Store, tune tuning.Tuning, logger *log.Logger) error {
	persisted := map[string]profiles.Avatar{}
	if store != nil {
		avatars, err := store.ListAvatars()
		if err != nil {
			return err
		}
		for _, a := range avatars {
			persisted[a.ID] = a
		}
	}

	placed := map[string]bool{}
	for _, r := range tune.Robots {
		pos := world.Vec2i{X: r.X, Y: r.Y}
		name := r.Name
		if a, ok := persisted[r.ID]; ok {
			pos = world.Vec2i{X: a.X, Y: a.Y}
			if a.Name != "" {
				name = a.Name
			}
		}
		if _, _, err := w.AddEntity(r.ID, world.KindRobot, name, pos); err != nil {
			return err
		}
		placed[r.ID] = true
		if store != nil {
			if _, ok := persisted[r.ID]; !ok {
				if err := store.UpsertAvatar(profiles.Avatar{
					ID: r.ID, Name: name, Kind: string(world.KindRobot),
					X: pos.X, Y: pos.Y, FacingY: 1,
				}); err != nil {
					return err
				}
			}
		}
	}

	// Avatars known only to the store (e.g. created by past player visits)
	// come back as robots too.
	for id, a := range persisted {
		if placed[id] || a.Kind == string(world.KindWall) {
			continue
		}
		if _, _, err := w.AddEntity(id, world.KindRobot, a.Name, world.Vec2i{X: a.X, Y: a.Y}); err != nil {
			return err
		}
	}

	if n := len(tune.Robots); n > 0 {
		logger.Printf("seeded %d configured robots (%d resumed from store)", n, len(persisted))
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
