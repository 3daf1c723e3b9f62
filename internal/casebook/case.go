package casebook

import (
	"fmt"
	"sort"
	"strings"
)

// Case is one pre-defined clinical scenario a run is seeded with. The
// clinician agent receives PromptText as opening context.
type Case struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	PatientAge        int               `json:"patient_age"`
	Diagnosis         string            `json:"diagnosis"`
	Stage             string            `json:"stage"`
	Histology         string            `json:"histology"`
	Grade             string            `json:"grade"`
	TumorSize         string            `json:"tumor_size"`
	Nodes             string            `json:"nodes"`
	Biomarkers        map[string]string `json:"biomarkers"`
	Genomics          map[string]string `json:"genomics,omitempty"`
	Comorbidities     []string          `json:"comorbidities"`
	PerformanceStatus string            `json:"performance_status"`
	AdditionalContext string            `json:"additional_context"`
}

// PromptText formats the case as the clinical presentation block handed to
// the clinician before the opening turn.
func (c Case) PromptText() string {
	var b strings.Builder
	b.WriteString("PATIENT CASE PRESENTATION:\n\n")
	fmt.Fprintf(&b, "Age: %d years old\n", c.PatientAge)
	fmt.Fprintf(&b, "Diagnosis: %s\n", c.Diagnosis)
	fmt.Fprintf(&b, "Stage: %s\n\n", c.Stage)

	b.WriteString("PATHOLOGY:\n")
	fmt.Fprintf(&b, "- Histology: %s\n", c.Histology)
	fmt.Fprintf(&b, "- Grade: %s\n", c.Grade)
	fmt.Fprintf(&b, "- Tumor Size: %s\n", c.TumorSize)
	fmt.Fprintf(&b, "- Lymph Nodes: %s\n\n", c.Nodes)

	b.WriteString("BIOMARKERS:\n")
	for _, k := range sortedKeys(c.Biomarkers) {
		fmt.Fprintf(&b, "- %s: %s\n", k, c.Biomarkers[k])
	}

	b.WriteString("\nGENOMIC TESTING:")
	if len(c.Genomics) == 0 {
		b.WriteString(" Not yet performed\n")
	} else {
		b.WriteString("\n")
		for _, k := range sortedKeys(c.Genomics) {
			fmt.Fprintf(&b, "- %s: %s\n", k, c.Genomics[k])
		}
	}

	b.WriteString("\nMEDICAL HISTORY:\n")
	comorbidities := "None"
	if len(c.Comorbidities) > 0 {
		comorbidities = strings.Join(c.Comorbidities, ", ")
	}
	fmt.Fprintf(&b, "- Comorbidities: %s\n", comorbidities)
	fmt.Fprintf(&b, "- Performance Status: %s\n\n", c.PerformanceStatus)

	b.WriteString("ADDITIONAL CONTEXT:\n")
	b.WriteString(c.AdditionalContext)
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store exposes case retrieval for run construction and HTTP handlers.
type Store interface {
	List() []Case
	FindByID(id string) (Case, bool)
}

type MemoryStore struct {
	items []Case
}

func NewMemoryStore(items []Case) *MemoryStore {
	return &MemoryStore{items: append([]Case(nil), items...)}
}

func (s *MemoryStore) List() []Case {
	return append([]Case(nil), s.items...)
}

func (s *MemoryStore) FindByID(id string) (Case, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Case{}, false
}

// Seed returns the built-in case catalog.
func Seed() []Case {
	return []Case{
		{
			ID:         "brca2-adjuvant",
			Title:      "BRCA2 Carrier: Comprehensive Treatment Planning",
			PatientAge: 40,
			Diagnosis:  "Invasive ductal carcinoma, left breast",
			Stage:      "IIA (T2N0M0)",
			Histology:  "Invasive ductal carcinoma",
			Grade:      "Grade 2 (moderately differentiated)",
			TumorSize:  "2.8 cm",
			Nodes:      "0/3 sentinel nodes positive",
			Biomarkers: map[string]string{
				"ER":   "Positive (95%)",
				"PR":   "Positive (80%)",
				"HER2": "Negative (IHC 1+)",
				"Ki67": "22%",
			},
			Genomics: map[string]string{
				"Germline":    "BRCA2 pathogenic variant",
				"Oncotype DX": "Recurrence Score 24 (intermediate)",
			},
			Comorbidities:     []string{"Mild hypertension, well controlled"},
			PerformanceStatus: "ECOG 0",
			AdditionalContext: "Patient completed lumpectomy with clear margins two weeks ago. " +
				"Today's visit is to discuss the comprehensive treatment plan: adjuvant therapy options, " +
				"implications of the BRCA2 finding for risk-reducing surgery, and surveillance.",
		},
	}
}
