package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gmarchetti/consultsim/internal/sim"
	"github.com/gmarchetti/consultsim/internal/store"
)

func sampleRecord() store.RunRecord {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return store.RunRecord{
		ID:            "run-1",
		CaseID:        "brca2-adjuvant",
		CaseTitle:     "BRCA2 adjuvant therapy discussion",
		ClinicianName: "Dr. Anderson",
		PatientName:   "Sarah",
		Provider:      "mock",
		Phase:         "completed",
		Reason:        "ending_phrase",
		CreatedAt:     created,
		Turns: []sim.Turn{
			{Sequence: 1, Role: sim.RoleClinician, Content: "Good morning, Sarah.", Timestamp: created},
			{Sequence: 2, Role: sim.RolePatient, Content: "Good morning, doctor. <script>", Timestamp: created},
		},
	}
}

func TestRenderText(t *testing.T) {
	payload, contentType, filename, err := Render(FormatText, sampleRecord())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if contentType != "text/plain; charset=utf-8" {
		t.Fatalf("content type = %q", contentType)
	}
	if filename != "consult-20260314-093000.txt" {
		t.Fatalf("filename = %q", filename)
	}
	text := string(payload)
	for _, want := range []string{
		"SIMULATED CLINICAL CONSULTATION",
		"BRCA2 adjuvant therapy discussion",
		"completed (ending_phrase)",
		"[1] Dr. Anderson:",
		"[2] Sarah:",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("text export missing %q:\n%s", want, text)
		}
	}
}

func TestRenderTextDefaultsSpeakerNames(t *testing.T) {
	record := sampleRecord()
	record.ClinicianName = ""
	payload, _, _, err := Render("", record)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(payload), "[1] Clinician:") {
		t.Fatalf("fallback speaker name missing:\n%s", payload)
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	payload, contentType, _, err := Render(FormatJSON, sampleRecord())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if contentType != "application/json" {
		t.Fatalf("content type = %q", contentType)
	}
	var decoded store.RunRecord
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if decoded.ID != "run-1" || len(decoded.Turns) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestRenderHTMLEscapesContent(t *testing.T) {
	payload, contentType, _, err := Render(FormatHTML, sampleRecord())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if contentType != "text/html; charset=utf-8" {
		t.Fatalf("content type = %q", contentType)
	}
	html := string(payload)
	if strings.Contains(html, "<script>") {
		t.Fatal("turn content was not escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Fatalf("escaped content missing:\n%s", html)
	}
	if !strings.Contains(html, `class="turn patient"`) {
		t.Fatal("patient turn styling missing")
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if _, _, _, err := Render("pdf", sampleRecord()); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
