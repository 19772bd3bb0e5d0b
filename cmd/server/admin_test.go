package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	"warfront.gg/internal/sim/tuning"
	"warfront.gg/internal/sim/world"
	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

func newAdminWorld(t *testing.T, seed func(*store.Memory)) *http.ServeMux {
	t.Helper()
	w := world.New(world.Config{ID: "overworld"}, world.Deps{Tuning: tuning.Defaults(), Clans: clans.NewRegistry()})
	mem := store.NewMemory(w)
	if seed != nil {
		seed(mem)
	}
	if err := w.Bootstrap(context.Background(), mem); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	mux := http.NewServeMux()
	registerAdmin(mux, w, nil, nil)
	return mux
}

func TestAdmin_StateAndMetrics(t *testing.T) {
	mux := newAdminWorld(t, func(mem *store.Memory) {
		mem.AdjustBank(store.BankChange{ClanID: "A", Delta: decimal.RequireFromString("1500.25"), At: time.Now()},
			func(modelpkg.ClanBank, error) {})
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("state status=%d body=%s", rr.Code, rr.Body.String())
	}
	var st worldState
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.World != "overworld" || st.Territories != 0 {
		t.Fatalf("state=%+v", st)
	}
	if len(st.Banks) != 1 || st.Banks[0].ClanID != "A" || st.Banks[0].Balance != "1500.25" {
		t.Fatalf("banks=%+v", st.Banks)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `warfront_territories{world="overworld"} 0`) {
		t.Fatalf("metrics:\n%s", body)
	}
}

func TestAdmin_StateRequiresLoopback(t *testing.T) {
	mux := newAdminWorld(t, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug", "json"); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := newLogger("loud", "console"); err == nil {
		t.Fatalf("expected bad level error")
	}
}
