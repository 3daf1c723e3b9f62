// Package export renders archived runs into downloadable documents.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gmarchetti/consultsim/internal/sim"
	"github.com/gmarchetti/consultsim/internal/store"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatHTML = "html"
)

// Render produces the document for a run in the requested format and
// returns the payload, its content type, and a suggested filename.
func Render(format string, record store.RunRecord) ([]byte, string, string, error) {
	stamp := record.CreatedAt.UTC().Format("20060102-150405")
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return []byte(renderText(record)), "text/plain; charset=utf-8", "consult-" + stamp + ".txt", nil
	case FormatJSON:
		payload, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return nil, "", "", err
		}
		return payload, "application/json", "consult-" + stamp + ".json", nil
	case FormatHTML:
		payload, err := renderHTML(record)
		if err != nil {
			return nil, "", "", err
		}
		return payload, "text/html; charset=utf-8", "consult-" + stamp + ".html", nil
	default:
		return nil, "", "", fmt.Errorf("unknown export format %q", format)
	}
}

func renderText(record store.RunRecord) string {
	var b strings.Builder
	b.WriteString("SIMULATED CLINICAL CONSULTATION\n")
	b.WriteString(strings.Repeat("=", 48) + "\n\n")
	writeField(&b, "Case", record.CaseTitle)
	writeField(&b, "Clinician", speakerLine(record.ClinicianName, record.ClinicianModel))
	writeField(&b, "Patient", speakerLine(record.PatientName, record.PatientModel))
	writeField(&b, "Provider", record.Provider)
	writeField(&b, "Outcome", outcomeLine(record))
	writeField(&b, "Date", record.CreatedAt.UTC().Format(time.RFC1123))
	b.WriteString("\n" + strings.Repeat("-", 48) + "\n\n")

	for _, turn := range record.Turns {
		b.WriteString(fmt.Sprintf("[%d] %s:\n%s\n\n", turn.Sequence, speakerName(record, turn.Role), turn.Content))
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%-10s %s\n", label+":", value)
}

func speakerLine(name, model string) string {
	if model == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, model)
}

func speakerName(record store.RunRecord, role sim.Role) string {
	switch role {
	case sim.RoleClinician:
		if record.ClinicianName != "" {
			return record.ClinicianName
		}
	case sim.RolePatient:
		if record.PatientName != "" {
			return record.PatientName
		}
	}
	return strings.ToUpper(string(role)[:1]) + string(role)[1:]
}

func outcomeLine(record store.RunRecord) string {
	if record.Reason == "" {
		return record.Phase
	}
	return fmt.Sprintf("%s (%s)", record.Phase, record.Reason)
}

func renderHTML(record store.RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	data := htmlData{
		Record:    record,
		Clinician: speakerName(record, sim.RoleClinician),
		Patient:   speakerName(record, sim.RolePatient),
		Outcome:   outcomeLine(record),
		Date:      record.CreatedAt.UTC().Format(time.RFC1123),
	}
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render html export: %w", err)
	}
	return buf.Bytes(), nil
}
