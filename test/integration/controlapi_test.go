// Package integration_test exercises the control API end to end over
// real HTTP, the way an operator's nat64ctl invocation would, against a
// translation Manager driven through its data-plane Process entry point.
package integration_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/gonat64/gonat64/internal/controlapi"
	"github.com/gonat64/gonat64/internal/nat64"
)

func newTestServer(t *testing.T) (*httptest.Server, *nat64.Manager) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	mgr := nat64.NewManager(logger, 96, nat64.DefaultTimeouts)
	srv := httptest.NewServer(controlapi.New(mgr, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, mgr
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// TestControlAPIDrivesLiveDataPlane walks through the full
// configuration surface: pool4 add, a live packet creating a BIB entry
// and session, introspection seeing both, a timeout override, and
// pool4 remove, which is unconditional even while a live BIB entry
// still holds one of the pool's ports.
func TestControlAPIDrivesLiveDataPlane(t *testing.T) {
	srv, mgr := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/pool4", map[string]string{"addr": "203.0.113.5"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add pool4: status %d", resp.StatusCode)
	}

	var pool []struct{ Addr string }
	if resp := doJSON(t, http.MethodGet, srv.URL+"/pool4", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("list pool4: status %d", resp.StatusCode)
	} else if err := json.NewDecoder(resp.Body).Decode(&pool); err != nil {
		t.Fatalf("decode pool4 list: %v", err)
	}
	if len(pool) != 1 || pool[0].Addr != "203.0.113.5" {
		t.Fatalf("pool4 list = %+v, want one 203.0.113.5 entry", pool)
	}

	v6Client := netip.MustParseAddr("2001:db8::a")
	v6Dst := netip.MustParseAddr("64:ff9b::198.51.100.7") // 198.51.100.7 embedded at /96
	verdict, err := mgr.Process(nat64.DirFromV6, nat64.IngressTuple{
		Proto: nat64.ProtoUDP,
		V6Src: nat64.V6Transport{Addr: v6Client, Port: 4000},
		V6Dst: nat64.V6Transport{Addr: v6Dst, Port: 53},
	})
	if err != nil || verdict != nat64.Accept {
		t.Fatalf("process v6 udp packet: verdict=%v err=%v", verdict, err)
	}

	var bibs []struct {
		V4Src struct {
			Addr string
			Port uint16
		}
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/bib?proto=udp", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list bib: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&bibs); err != nil {
		t.Fatalf("decode bib list: %v", err)
	}
	if len(bibs) != 1 || bibs[0].V4Src.Addr != "203.0.113.5" || bibs[0].V4Src.Port != 4000 {
		t.Fatalf("bib list = %+v, want one entry bound to 203.0.113.5:4000", bibs)
	}

	var sessions []struct{ State int }
	resp = doJSON(t, http.MethodGet, srv.URL+"/sessions?proto=udp", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list sessions: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode session list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %+v, want exactly one", sessions)
	}

	resp = doJSON(t, http.MethodPatch, srv.URL+"/config/timeouts", map[string]string{
		"class": "udp", "timeout": "45s",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("patch timeout: status %d", resp.StatusCode)
	}
	if got := mgr.Expiry().Timeout(nat64.ClassUDP); got != 45*time.Second {
		t.Fatalf("udp timeout after patch = %v, want 45s", got)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/pool4/203.0.113.5", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove pool4 while bib still owns its only port: status %d, want 204 (removal is unconditional; the live BIB entry still holds the port until reclaimed)", resp.StatusCode)
	}
}

// TestControlAPIRejectsUnknownClass checks that a malformed timeout
// override never touches the data plane and surfaces synchronously as
// a 400.
func TestControlAPIRejectsUnknownClass(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/config/timeouts", map[string]string{
		"class": "not-a-class", "timeout": "1m",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("patch timeout with bad class: status %d, want 400", resp.StatusCode)
	}
}
