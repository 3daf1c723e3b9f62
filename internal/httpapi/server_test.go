package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gmarchetti/consultsim/internal/casebook"
	"github.com/gmarchetti/consultsim/internal/config"
	"github.com/gmarchetti/consultsim/internal/observability"
	"github.com/gmarchetti/consultsim/internal/persona"
	"github.com/gmarchetti/consultsim/internal/run"
	"github.com/gmarchetti/consultsim/internal/speech"
	"github.com/gmarchetti/consultsim/internal/store"
)

var metricsSeq atomic.Int64

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Config{DefaultMaxTurns: 6}
	personas := persona.NewMemoryStore(persona.Seed())
	cases := casebook.NewMemoryStore(casebook.Seed())
	runs := run.NewManager(
		personas,
		cases,
		nil,
		run.Defaults{MaxTurns: 6, Provider: "mock", ClinicianModel: "m", PatientModel: "m"},
		time.Minute,
	)
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d_%d", time.Now().UnixNano(), metricsSeq.Add(1)))
	srv := New(cfg, runs, store.NewInMemoryStore(), personas, cases, speech.NewMock(), metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func createRun(t *testing.T, ts *httptest.Server, params map[string]any) map[string]any {
	t.Helper()
	body, _ := json.Marshal(params)
	res, err := http.Post(ts.URL+"/v1/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create run request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(res.Body)
		t.Fatalf("create status = %d, body %s", res.StatusCode, payload)
	}
	var created map[string]any
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created["id"] == "" {
		t.Fatalf("missing id in create response: %+v", created)
	}
	return created
}

func postJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	res, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(res.Body)
		t.Fatalf("POST %s status = %d, body %s", url, res.StatusCode, payload)
	}
	var decoded map[string]any
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func TestHealthAndCatalog(t *testing.T) {
	_, ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	for _, path := range []string{"/v1/personas", "/v1/cases"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		var payload map[string]any
		if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		res.Body.Close()
		if len(payload) == 0 {
			t.Fatalf("GET %s returned empty payload", path)
		}
	}
}

func TestStepProducesTurnAndAudio(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRun(t, ts, map[string]any{"max_turns": 4})
	id := created["id"].(string)

	stepped := postJSON(t, ts.URL+"/v1/runs/"+id+"/step")
	turn, ok := stepped["turn"].(map[string]any)
	if !ok {
		t.Fatalf("step response missing turn: %+v", stepped)
	}
	if turn["role"] != "clinician" {
		t.Fatalf("first turn role = %v, want clinician", turn["role"])
	}
	if stepped["phase"] != "running" {
		t.Fatalf("phase = %v, want running", stepped["phase"])
	}
	if stepped["audio_seq"] != float64(1) {
		t.Fatalf("audio_seq = %v, want 1", stepped["audio_seq"])
	}

	// The synthesized clip is waiting for the announced sequence.
	res, err := http.Get(ts.URL + "/v1/runs/" + id + "/audio?seq=1")
	if err != nil {
		t.Fatalf("GET audio error = %v", err)
	}
	payload, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d, body %s", res.StatusCode, payload)
	}
	if res.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("audio content type = %q", res.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(payload, []byte("RIFF")) {
		t.Fatalf("audio payload is not a WAV container")
	}

	// The slot was cleared by the consume.
	res, err = http.Get(ts.URL + "/v1/runs/" + id + "/audio?seq=1")
	if err != nil {
		t.Fatalf("GET audio error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusGone {
		t.Fatalf("second consume status = %d, want %d", res.StatusCode, http.StatusGone)
	}
}

func TestStaleAudioIsDropped(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRun(t, ts, map[string]any{"max_turns": 4})
	id := created["id"].(string)

	postJSON(t, ts.URL+"/v1/runs/"+id+"/step")

	// Asking for a different sequence clears the slot without returning it.
	res, err := http.Get(ts.URL + "/v1/runs/" + id + "/audio?seq=2")
	if err != nil {
		t.Fatalf("GET audio error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusGone {
		t.Fatalf("stale consume status = %d, want %d", res.StatusCode, http.StatusGone)
	}
	res, err = http.Get(ts.URL + "/v1/runs/" + id + "/audio?seq=1")
	if err != nil {
		t.Fatalf("GET audio error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusGone {
		t.Fatalf("post-stale consume status = %d, want %d", res.StatusCode, http.StatusGone)
	}
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRun(t, ts, map[string]any{"max_turns": 2})
	id := created["id"].(string)

	paused := postJSON(t, ts.URL+"/v1/runs/"+id+"/pause")
	if phase := paused["state"].(map[string]any)["phase"]; phase != "paused" {
		t.Fatalf("phase after pause = %v, want paused", phase)
	}

	// Steps while paused are no-ops.
	stepped := postJSON(t, ts.URL+"/v1/runs/"+id+"/step")
	if stepped["phase"] != "paused" || stepped["turn"] != nil {
		t.Fatalf("paused step = %+v, want no-op", stepped)
	}

	resumed := postJSON(t, ts.URL+"/v1/runs/"+id+"/resume")
	if phase := resumed["state"].(map[string]any)["phase"]; phase != "running" {
		t.Fatalf("phase after resume = %v, want running", phase)
	}

	postJSON(t, ts.URL+"/v1/runs/"+id+"/step")
	stepped = postJSON(t, ts.URL+"/v1/runs/"+id+"/step")
	if stepped["phase"] != "completed" || stepped["reason"] != "max_turns" {
		t.Fatalf("final step = %+v, want completed via max_turns", stepped)
	}

	// The finished run was archived with its transcript.
	res, err := http.Get(ts.URL + "/v1/archive/" + id)
	if err != nil {
		t.Fatalf("GET archive error = %v", err)
	}
	var record store.RunRecord
	if err := json.NewDecoder(res.Body).Decode(&record); err != nil {
		t.Fatalf("decode archived run: %v", err)
	}
	res.Body.Close()
	if record.Phase != "completed" || len(record.Turns) != 2 {
		t.Fatalf("archived record = %+v", record)
	}
}

func TestStopArchivesPartialRun(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRun(t, ts, map[string]any{"max_turns": 10})
	id := created["id"].(string)

	postJSON(t, ts.URL+"/v1/runs/"+id+"/step")
	stopped := postJSON(t, ts.URL+"/v1/runs/"+id+"/stop")
	if phase := stopped["state"].(map[string]any)["phase"]; phase != "stopped" {
		t.Fatalf("phase after stop = %v, want stopped", phase)
	}

	res, err := http.Get(ts.URL + "/v1/archive/" + id)
	if err != nil {
		t.Fatalf("GET archive error = %v", err)
	}
	var record store.RunRecord
	if err := json.NewDecoder(res.Body).Decode(&record); err != nil {
		t.Fatalf("decode archived run: %v", err)
	}
	res.Body.Close()
	if record.Phase != "stopped" || len(record.Turns) != 1 {
		t.Fatalf("archived record = %+v", record)
	}
}

func TestTranscriptAndExport(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRun(t, ts, map[string]any{"max_turns": 4})
	id := created["id"].(string)

	postJSON(t, ts.URL+"/v1/runs/"+id+"/step")
	postJSON(t, ts.URL+"/v1/runs/"+id+"/step")

	res, err := http.Get(ts.URL + "/v1/runs/" + id + "/transcript")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	var transcript struct {
		Turns []map[string]any `json:"turns"`
	}
	if err := json.NewDecoder(res.Body).Decode(&transcript); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	res.Body.Close()
	if len(transcript.Turns) != 2 {
		t.Fatalf("transcript has %d turns, want 2", len(transcript.Turns))
	}

	res, err = http.Get(ts.URL + "/v1/runs/" + id + "/export?format=text")
	if err != nil {
		t.Fatalf("GET export error = %v", err)
	}
	payload, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", res.StatusCode)
	}
	if !strings.Contains(string(payload), "SIMULATED CLINICAL CONSULTATION") {
		t.Fatalf("export payload missing header:\n%s", payload)
	}
	if !strings.Contains(res.Header.Get("Content-Disposition"), "attachment") {
		t.Fatalf("export disposition = %q", res.Header.Get("Content-Disposition"))
	}
}

func TestWatchStreamsTurnEvents(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRun(t, ts, map[string]any{"max_turns": 4})
	id := created["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/" + id + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial watch socket: %v", err)
	}
	defer conn.Close()

	// First frame is the phase snapshot for the late joiner.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot map[string]any
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot frame: %v", err)
	}
	if snapshot["type"] != "phase_changed" || snapshot["phase"] != "running" {
		t.Fatalf("snapshot frame = %+v", snapshot)
	}

	postJSON(t, ts.URL+"/v1/runs/"+id+"/step")

	sawTurn := false
	sawAudio := false
	for i := 0; i < 2; i++ {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read event frame: %v", err)
		}
		switch frame["type"] {
		case "turn_appended":
			sawTurn = true
			if frame["sequence"] != float64(1) || frame["role"] != "clinician" {
				t.Fatalf("turn frame = %+v", frame)
			}
		case "audio_ready":
			sawAudio = true
			if frame["sequence"] != float64(1) {
				t.Fatalf("audio frame = %+v", frame)
			}
		}
	}
	if !sawTurn || !sawAudio {
		t.Fatalf("missing events: turn=%v audio=%v", sawTurn, sawAudio)
	}
}

func TestSpeechPreview(t *testing.T) {
	_, ts := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"text": "Testing one two.", "voice": "aria"})
	res, err := http.Post(ts.URL+"/v1/speech/preview", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST preview error = %v", err)
	}
	payload, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", res.StatusCode, payload)
	}
	if !bytes.HasPrefix(payload, []byte("RIFF")) {
		t.Fatalf("preview payload is not a WAV container")
	}
}

func TestUnknownRunReturns404(t *testing.T) {
	_, ts := newTestServer(t)
	res, err := http.Post(ts.URL+"/v1/runs/nope/step", "application/json", nil)
	if err != nil {
		t.Fatalf("POST step error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
