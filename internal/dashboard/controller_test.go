package dashboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"medicore-client/internal/api"
	"medicore-client/internal/bus"
	"medicore-client/internal/dashboard"
	"medicore-client/internal/notify"
	"medicore-client/internal/session"
)

type recordingNotifier struct {
	mu     sync.Mutex
	counts map[string]int
}

func (n *recordingNotifier) Notify(level notify.Level, id, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts[id]++
}

func (n *recordingNotifier) Dismiss(id string) {}

func (n *recordingNotifier) count(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[id]
}

type apptBackend struct {
	mu         sync.Mutex
	appts      []map[string]any
	failList   bool
	failDelete bool
	listGate   chan struct{} // non-nil: list handlers wait here
	listStart  chan struct{} // non-nil: signaled when a list request arrives
}

func wireAppt(id, department string) map[string]any {
	return map[string]any{
		"_id":              id,
		"department":       department,
		"doctor_firstName": "Gregory",
		"doctor_lastName":  "House",
		"appointment_date": "2026-09-10T09:30:00Z",
		"status":           "Confirmed",
		"patientId":        "u1",
	}
}

func (b *apptBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/api/v1/appointment/user/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	b.mu.Lock()
	failList, failDelete := b.failList, b.failDelete
	gate, start := b.listGate, b.listStart
	appts := make([]map[string]any, len(b.appts))
	copy(appts, b.appts)
	b.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if start != nil {
			start <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		if failList {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"appointments": appts})
	case http.MethodDelete:
		if failDelete {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"message": "Appointment Not Found!"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message": "Appointment Deleted!"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type fixture struct {
	ctrl     *dashboard.Controller
	bus      *bus.Bus
	backend  *apptBackend
	notifier *recordingNotifier
}

func newFixture(t *testing.T, appts ...map[string]any) *fixture {
	t.Helper()
	be := &apptBackend{appts: appts}
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL, zap.NewNop())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	b := bus.New(zap.NewNop())
	store := session.NewStore(client,
		session.NewFileCache(filepath.Join(t.TempDir(), "session.json")),
		b, zap.NewNop())
	t.Cleanup(store.Close)

	n := &recordingNotifier{counts: make(map[string]int)}
	ctrl := dashboard.New(client, store, b, n, zap.NewNop())
	t.Cleanup(ctrl.Close)
	return &fixture{ctrl: ctrl, bus: b, backend: be, notifier: n}
}

// ----- list -----

func TestListPopulatesMirror(t *testing.T) {
	f := newFixture(t, wireAppt("a1", "Cardiology"), wireAppt("a2", "Dermatology"))

	if err := f.ctrl.List(context.Background(), "u1"); err != nil {
		t.Fatalf("list: %v", err)
	}
	got := f.ctrl.Appointments()
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("mirror: %+v", got)
	}
	if !f.ctrl.Loaded() {
		t.Error("loaded flag not set")
	}
}

// ----- delete -----

func TestRemoveKeepsOrder(t *testing.T) {
	f := newFixture(t, wireAppt("a1", "A"), wireAppt("a2", "B"), wireAppt("a3", "C"))
	f.ctrl.List(context.Background(), "u1")

	if err := f.ctrl.Remove(context.Background(), "a2"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got := f.ctrl.Appointments()
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a3" {
		t.Fatalf("expected [a1 a3] in order, got %+v", got)
	}
}

func TestRemoveFailureLeavesMirror(t *testing.T) {
	f := newFixture(t, wireAppt("a1", "A"), wireAppt("a2", "B"), wireAppt("a3", "C"))
	f.ctrl.List(context.Background(), "u1")

	f.backend.mu.Lock()
	f.backend.failDelete = true
	f.backend.mu.Unlock()

	err := f.ctrl.Remove(context.Background(), "a2")
	if err == nil {
		t.Fatal("expected delete error")
	}
	var ve *api.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// no optimistic removal: the entry must still be there
	if got := f.ctrl.Appointments(); len(got) != 3 {
		t.Fatalf("mirror changed on failed delete: %+v", got)
	}
	if f.notifier.count("appointment-delete") != 1 {
		t.Errorf("expected one error notification, got %d", f.notifier.count("appointment-delete"))
	}
}

// ----- event-driven refresh -----

func TestAppointmentCreatedTriggersRefetch(t *testing.T) {
	f := newFixture(t, wireAppt("a1", "A"))
	f.ctrl.Bind()
	f.ctrl.List(context.Background(), "u1")

	if got := f.ctrl.Appointments(); len(got) != 1 {
		t.Fatalf("precondition: %+v", got)
	}

	// booking happened elsewhere; server state moved on
	f.backend.mu.Lock()
	f.backend.appts = append(f.backend.appts, wireAppt("a2", "B"))
	f.backend.mu.Unlock()

	f.bus.Publish(bus.AppointmentCreated)

	got := f.ctrl.Appointments()
	if len(got) != 2 || got[1].ID != "a2" {
		t.Fatalf("event did not trigger a full re-fetch: %+v", got)
	}
}

func TestEventBeforeUserIsKnownIsIgnored(t *testing.T) {
	f := newFixture(t, wireAppt("a1", "A"))
	f.ctrl.Bind()

	f.bus.Publish(bus.AppointmentCreated)

	if got := f.ctrl.Appointments(); len(got) != 0 {
		t.Fatalf("fetch without an owner: %+v", got)
	}
}

// ----- refresh gating -----

func TestManualRefreshNotReentrant(t *testing.T) {
	f := newFixture(t, wireAppt("a1", "A"))
	f.ctrl.List(context.Background(), "u1")

	gate := make(chan struct{})
	start := make(chan struct{}, 1)
	f.backend.mu.Lock()
	f.backend.listGate = gate
	f.backend.listStart = start
	f.backend.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Refresh(context.Background()) }()
	<-start

	if !f.ctrl.Refreshing() {
		t.Error("refreshing flag not set while in flight")
	}
	if err := f.ctrl.Refresh(context.Background()); !errors.Is(err, dashboard.ErrRefreshInFlight) {
		t.Errorf("expected ErrRefreshInFlight, got %v", err)
	}

	close(gate)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never finished")
	}
	if f.ctrl.Refreshing() {
		t.Error("refreshing flag stuck")
	}
}

func TestFailedRefreshLeavesMirror(t *testing.T) {
	f := newFixture(t, wireAppt("a1", "A"), wireAppt("a2", "B"))
	f.ctrl.List(context.Background(), "u1")

	f.backend.mu.Lock()
	f.backend.failList = true
	f.backend.mu.Unlock()

	if err := f.ctrl.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := f.ctrl.Appointments(); len(got) != 2 {
		t.Fatalf("mirror changed on failed refresh: %+v", got)
	}
	if f.notifier.count("appointments-fetch-failed") != 1 {
		t.Errorf("expected one fetch notification, got %d", f.notifier.count("appointments-fetch-failed"))
	}
}
