package export

import (
	"html/template"

	"github.com/gmarchetti/consultsim/internal/store"
)

type htmlData struct {
	Record    store.RunRecord
	Clinician string
	Patient   string
	Outcome   string
	Date      string
}

var documentTemplate = template.Must(template.New("consult").Funcs(template.FuncMap{
	"speaker": func(d htmlData, role string) string {
		if role == "clinician" {
			return d.Clinician
		}
		return d.Patient
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Simulated Consultation: {{.Record.CaseTitle}}</title>
<style>
body { font-family: Georgia, serif; max-width: 46em; margin: 2em auto; color: #222; }
h1 { font-size: 1.4em; border-bottom: 2px solid #444; padding-bottom: 0.3em; }
dl { display: grid; grid-template-columns: 8em 1fr; gap: 0.2em 1em; }
dt { font-weight: bold; }
.turn { margin: 1.2em 0; }
.turn .who { font-weight: bold; }
.turn.clinician .who { color: #1a4d7c; }
.turn.patient .who { color: #7c3a1a; }
</style>
</head>
<body>
<h1>Simulated Clinical Consultation</h1>
<dl>
<dt>Case</dt><dd>{{.Record.CaseTitle}}</dd>
<dt>Clinician</dt><dd>{{.Clinician}}{{with .Record.ClinicianModel}} ({{.}}){{end}}</dd>
<dt>Patient</dt><dd>{{.Patient}}{{with .Record.PatientModel}} ({{.}}){{end}}</dd>
<dt>Outcome</dt><dd>{{.Outcome}}</dd>
<dt>Date</dt><dd>{{.Date}}</dd>
</dl>
<hr>
{{$d := .}}
{{range .Record.Turns}}
<div class="turn {{.Role}}">
<span class="who">[{{.Sequence}}] {{speaker $d (printf "%s" .Role)}}:</span>
<p>{{.Content}}</p>
</div>
{{end}}
</body>
</html>
`))
