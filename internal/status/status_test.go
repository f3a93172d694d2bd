package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker()

	snap := tr.Snapshot()
	if snap.Connected {
		t.Fatalf("new tracker Connected = true, want false")
	}
	if snap.PID == 0 || snap.StartedAt.IsZero() {
		t.Fatalf("new tracker missing pid/start time: %+v", snap)
	}

	tr.SetConnected("lk-1")
	if got := tr.ListenKey(); got != "lk-1" {
		t.Fatalf("ListenKey() = %q, want lk-1", got)
	}
	if !tr.Snapshot().Connected {
		t.Fatalf("Connected = false after SetConnected")
	}

	tr.RecordEvent(time.Unix(100, 0))
	tr.RecordCancel(3, time.Unix(200, 0))
	tr.SetDisconnected(errors.New("read timeout"))
	tr.RecordReconnectAttempt()
	tr.RecordReconnectAttempt()

	snap = tr.Snapshot()
	if snap.Connected {
		t.Fatalf("Connected = true after SetDisconnected")
	}
	if tr.ListenKey() != "" {
		t.Fatalf("ListenKey() retained after disconnect")
	}
	if snap.LastError != "read timeout" {
		t.Fatalf("LastError = %q, want read timeout", snap.LastError)
	}
	if snap.Reconnects != 2 {
		t.Fatalf("Reconnects = %d, want 2", snap.Reconnects)
	}
	if snap.LastEventAt == nil || !snap.LastEventAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("LastEventAt = %v, want 100s epoch", snap.LastEventAt)
	}
	if snap.LastCancelAt == nil || snap.LastCancelCount != 3 {
		t.Fatalf("cancel record = %v/%d, want set/3", snap.LastCancelAt, snap.LastCancelCount)
	}

	tr.SetConnected("lk-2")
	if got := tr.Snapshot().LastError; got != "" {
		t.Fatalf("LastError = %q after reconnect, want cleared", got)
	}
}

func TestSnapshotIsolatesTimestamps(t *testing.T) {
	tr := NewTracker()
	tr.RecordEvent(time.Unix(100, 0))
	snap := tr.Snapshot()
	*snap.LastEventAt = time.Unix(999, 0)
	if got := tr.Snapshot().LastEventAt; !got.Equal(time.Unix(100, 0)) {
		t.Fatalf("tracker timestamp mutated through snapshot: %v", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	tr := NewTracker()
	tr.SetConnected("secret-listen-key")
	tr.RecordCancel(2, time.Unix(300, 0))
	srv := NewServer(0, tr)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	var got State
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if !got.Connected || got.LastCancelCount != 2 {
		t.Fatalf("status body = %+v, want connected with cancel count 2", got)
	}
	if strings.Contains(rec.Body.String(), "secret-listen-key") {
		t.Fatalf("status response leaked the listen key: %s", rec.Body.String())
	}
}

func TestStatusEndpointRejectsOtherRequests(t *testing.T) {
	srv := NewServer(0, NewTracker())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("POST /status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /orders = %d, want 404", rec.Code)
	}
}
