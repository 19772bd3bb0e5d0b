package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/world"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

type worldState struct {
	World       string           `json:"world"`
	Sessions    int              `json:"sessions"`
	Territories int              `json:"territories"`
	Wars        []modelpkg.War   `json:"wars"`
	Sieges      []siegeView      `json:"sieges"`
	Banks       []bankView       `json:"banks"`
	Store       *store.PoolStats `json:"store,omitempty"`
}

type bankView struct {
	ClanID  string `json:"clan_id"`
	Balance string `json:"balance"`
}

type siegeView struct {
	ID        int64   `json:"id"`
	WarID     int64   `json:"war_id"`
	Chunk     string  `json:"chunk"`
	Aggressor string  `json:"aggressor"`
	Defender  string  `json:"defender"`
	Remaining float64 `json:"remaining"`
	Attackers int     `json:"attackers"`
	Defenders int     `json:"defenders"`
}

var errWorldTimeout = errors.New("world did not answer")

// readState snapshots live counters on the world goroutine.
func readState(ctx context.Context, w *world.World) (worldState, error) {
	ch := make(chan worldState, 1)
	w.Post(func() {
		st := worldState{
			World:       w.ID(),
			Sessions:    w.SessionCount(),
			Territories: w.Territory().Cache().Len(),
			Wars:        w.Warfare().ActiveWars(),
		}
		for _, sg := range w.Warfare().ActiveSieges() {
			st.Sieges = append(st.Sieges, siegeView{
				ID: sg.ID, WarID: sg.WarID, Chunk: sg.Coord.String(),
				Aggressor: sg.Aggressor, Defender: sg.Defender, Remaining: sg.Remaining,
				Attackers: len(sg.Attackers), Defenders: len(sg.Defenders),
			})
		}
		for _, b := range w.Territory().Ledger().Snapshot() {
			st.Banks = append(st.Banks, bankView{ClanID: b.ClanID, Balance: b.Balance.String()})
		}
		ch <- st
	})
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return worldState{}, errWorldTimeout
	}
}

func registerAdmin(mux *http.ServeMux, w *world.World, sq *store.SQLite, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := readState(ctx, w)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		id := st.World

		fmt.Fprintf(rw, "# HELP warfront_sessions Connected participants.\n")
		fmt.Fprintf(rw, "# TYPE warfront_sessions gauge\n")
		fmt.Fprintf(rw, "warfront_sessions{world=%q} %d\n", id, st.Sessions)

		fmt.Fprintf(rw, "# HELP warfront_territories Claimed chunks.\n")
		fmt.Fprintf(rw, "# TYPE warfront_territories gauge\n")
		fmt.Fprintf(rw, "warfront_territories{world=%q} %d\n", id, st.Territories)

		fmt.Fprintf(rw, "# HELP warfront_wars_live Declared or besieging wars.\n")
		fmt.Fprintf(rw, "# TYPE warfront_wars_live gauge\n")
		fmt.Fprintf(rw, "warfront_wars_live{world=%q} %d\n", id, len(st.Wars))

		fmt.Fprintf(rw, "# HELP warfront_sieges_active Active sieges.\n")
		fmt.Fprintf(rw, "# TYPE warfront_sieges_active gauge\n")
		fmt.Fprintf(rw, "warfront_sieges_active{world=%q} %d\n", id, len(st.Sieges))

		if sq != nil {
			ps := sq.Stats()
			fmt.Fprintf(rw, "# HELP warfront_store_queue_depth Pending persistence jobs.\n")
			fmt.Fprintf(rw, "# TYPE warfront_store_queue_depth gauge\n")
			fmt.Fprintf(rw, "warfront_store_queue_depth{world=%q} %d\n", id, ps.QueueDepth)
			fmt.Fprintf(rw, "# HELP warfront_store_dropped_total Persistence jobs rejected because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE warfront_store_dropped_total counter\n")
			fmt.Fprintf(rw, "warfront_store_dropped_total{world=%q} %d\n", id, ps.DropTotal)
		}
	})
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := readState(ctx, w)
		if err != nil {
			logger.Warn("admin state", zap.Error(err))
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if sq != nil {
			ps := sq.Stats()
			st.Store = &ps
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(st)
	})
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
