package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func do(t *testing.T, srv *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, body
}

func createPair(t *testing.T, srv *Server) (writeKey, readKey string) {
	t.Helper()
	w, body := do(t, srv, "POST", "/api/cells")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d; body: %s", w.Code, w.Body.String())
	}
	return body["write_key"].(string), body["read_key"].(string)
}

func TestWriteThenRead(t *testing.T) {
	srv, _, _ := testServer(t)
	wk, rk := createPair(t, srv)

	w, body := do(t, srv, "GET", "/write/"+wk+"?bit=true")
	if w.Code != http.StatusOK {
		t.Fatalf("write: status = %d; body: %s", w.Code, w.Body.String())
	}
	if body["bit"] != true {
		t.Errorf("bit = %v, want true", body["bit"])
	}
	if body["read_key"] != rk {
		t.Errorf("read_key = %v, want %s", body["read_key"], rk)
	}
	if body["gravity_enabled"] != false {
		t.Errorf("gravity_enabled = %v, want false", body["gravity_enabled"])
	}

	w, body = do(t, srv, "GET", "/read/"+rk)
	if w.Code != http.StatusOK {
		t.Fatalf("read: status = %d", w.Code)
	}
	if body["bit"] != true {
		t.Errorf("read bit = %v, want true", body["bit"])
	}
}

func TestWriteKeyInfo(t *testing.T) {
	srv, _, _ := testServer(t)
	wk, rk := createPair(t, srv)

	// No bit parameter: resolve the pair, mutate nothing
	w, body := do(t, srv, "GET", "/write/"+wk)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["write_key"] != wk || body["read_key"] != rk {
		t.Errorf("key info = %v, want %s/%s", body, wk, rk)
	}

	_, body = do(t, srv, "GET", "/read/"+rk)
	if body["bit"] != false {
		t.Errorf("bit = %v after info lookup, want false", body["bit"])
	}
}

func TestUnknownKeys(t *testing.T) {
	srv, _, _ := testServer(t)

	w, body := do(t, srv, "GET", "/write/never-created?bit=true")
	if w.Code != http.StatusNotFound {
		t.Errorf("write unknown: status = %d, want 404", w.Code)
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Error("write unknown: no error message")
	}

	w, body = do(t, srv, "GET", "/read/never-created")
	if w.Code != http.StatusNotFound {
		t.Errorf("read unknown: status = %d, want 404", w.Code)
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Error("read unknown: no error message")
	}
}

func TestInvalidParameters(t *testing.T) {
	srv, _, _ := testServer(t)
	wk, rk := createPair(t, srv)

	bad := []string{
		"/write/" + wk + "?bit=maybe",
		"/write/" + wk + "?bit=true&gravity=abc",
		"/write/" + wk + "?bit=true&gravity=-5",
		"/write/" + wk + "?gravity=10", // gravity without bit
	}
	for _, path := range bad {
		w, _ := do(t, srv, "GET", path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}

	// A rejected write leaves prior state fully intact
	_, body := do(t, srv, "GET", "/read/"+rk)
	if body["bit"] != false {
		t.Errorf("bit = %v after rejected writes, want false", body["bit"])
	}
	_, body = do(t, srv, "GET", "/api/cells")
	cells := body["cells"].([]any)
	if cells[0].(map[string]any)["gravity_enabled"] != false {
		t.Error("rejected write armed gravity")
	}
}

// Scenario: arm a 5s gravity timer, read true immediately, then read false
// after the timer lapses and see the disarm in the enumeration.
func TestGravityExpiryEndToEnd(t *testing.T) {
	srv, _, now := testServer(t)
	wk, rk := createPair(t, srv)

	w, _ := do(t, srv, "GET", "/write/"+wk+"?bit=true&gravity=5")
	if w.Code != http.StatusOK {
		t.Fatalf("write: status = %d; body: %s", w.Code, w.Body.String())
	}

	_, body := do(t, srv, "GET", "/read/"+rk)
	if body["bit"] != true {
		t.Fatalf("bit = %v before expiry, want true", body["bit"])
	}

	*now = now.Add(6 * time.Second)

	_, body = do(t, srv, "GET", "/read/"+rk)
	if body["bit"] != false {
		t.Errorf("bit = %v after expiry, want false", body["bit"])
	}

	_, body = do(t, srv, "GET", "/api/cells")
	cell := body["cells"].([]any)[0].(map[string]any)
	if cell["gravity_enabled"] != false {
		t.Error("enumeration still shows gravity armed after lazy reset")
	}
	if _, ok := cell["gravity_expires_at"]; ok {
		t.Error("enumeration still carries a deadline after lazy reset")
	}
}

// Scenario: no gravity parameter means no automatic reset, ever.
func TestPlainWritePersistsIndefinitely(t *testing.T) {
	srv, _, now := testServer(t)
	wk, rk := createPair(t, srv)

	do(t, srv, "GET", "/write/"+wk+"?bit=true")

	*now = now.Add(30 * time.Minute)
	_, body := do(t, srv, "GET", "/read/"+rk)
	if body["bit"] != true {
		t.Errorf("bit = %v after 30m without gravity, want true", body["bit"])
	}
}

// Scenario: an explicit gravity=0 disarm overrides a prior arming and leaves
// the bit alone.
func TestGravityDisarmEndToEnd(t *testing.T) {
	srv, _, now := testServer(t)
	wk, rk := createPair(t, srv)

	do(t, srv, "GET", "/write/"+wk+"?bit=true&gravity=100")
	w, body := do(t, srv, "GET", "/write/"+wk+"?bit=true&gravity=0")
	if w.Code != http.StatusOK {
		t.Fatalf("disarm: status = %d", w.Code)
	}
	if body["gravity_enabled"] != false {
		t.Errorf("gravity_enabled = %v after disarm, want false", body["gravity_enabled"])
	}

	// Far past the original 100s deadline the bit still holds
	*now = now.Add(5 * time.Minute)
	_, body = do(t, srv, "GET", "/read/"+rk)
	if body["bit"] != true {
		t.Errorf("bit = %v after disarm + 5m, want true", body["bit"])
	}
}

// Cells idle past the TTL disappear on the next creation request, and both
// keys then resolve to nothing.
func TestIdleExpiryOnCreate(t *testing.T) {
	srv, _, now := testServer(t) // 1h idle TTL
	wk, rk := createPair(t, srv)

	// Let the cell idle past the TTL, then trigger the opportunistic sweep
	// with a fresh creation. The sweep shares the store's clock, so
	// advancing it ages the cell.
	*now = now.Add(2 * time.Hour)

	w, _ := do(t, srv, "POST", "/api/cells")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", w.Code)
	}

	if w, _ := do(t, srv, "GET", "/read/"+rk); w.Code != http.StatusNotFound {
		t.Errorf("read of idle cell: status = %d, want 404", w.Code)
	}
	if w, _ := do(t, srv, "GET", "/write/"+wk+"?bit=false"); w.Code != http.StatusNotFound {
		t.Errorf("write to idle cell: status = %d, want 404", w.Code)
	}
}

func TestJSONErrorEscapesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	jsonError(w, http.StatusInternalServerError, `lookup "key" failed: disk I/O error`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not valid JSON: %v; body: %s", err, w.Body.String())
	}
	if body["error"] != `lookup "key" failed: disk I/O error` {
		t.Errorf("error = %q, quotes not preserved", body["error"])
	}
}

func TestListCellsEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)
	wk1, rk1 := createPair(t, srv)
	_, rk2 := createPair(t, srv)

	do(t, srv, "GET", "/write/"+wk1+"?bit=true&gravity=60")

	_, body := do(t, srv, "GET", "/api/cells")
	if body["count"].(float64) != 2 {
		t.Fatalf("count = %v, want 2", body["count"])
	}

	byKey := map[string]map[string]any{}
	for _, raw := range body["cells"].([]any) {
		c := raw.(map[string]any)
		byKey[c["read_key"].(string)] = c
	}
	if c := byKey[rk1]; c["bit"] != true || c["gravity_enabled"] != true {
		t.Errorf("cell 1 = %v, want bit=true gravity armed", c)
	}
	if c := byKey[rk2]; c["bit"] != false || c["gravity_enabled"] != false {
		t.Errorf("cell 2 = %v, want untouched defaults", c)
	}
}
