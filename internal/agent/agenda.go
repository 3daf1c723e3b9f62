package agent

// The clinician leads the visit through a fixed agenda. Guidance is derived
// from how many clinician turns the transcript already holds, so the agent
// itself stays stateless between calls.

const exchangesPerTopic = 2

type topic struct {
	name string
	lead string
}

var visitAgenda = []topic{
	{
		name: "introduction",
		lead: "Deliver the main results in 2-3 sentences, reassure, and invite a quick reaction.",
	},
	{
		name: "recommendation",
		lead: "State your treatment recommendation, include the rationale, and check the patient's understanding.",
	},
	{
		name: "considerations",
		lead: "Proactively cover logistics, timeline, side effects, and patient responsibilities in plain language.",
	},
	{
		name: "closing",
		lead: "Summarize the plan, confirm next steps, reassure your availability, and invite any final questions.",
	},
}

// clinicianGuidance returns the steering line for the clinician's next turn
// given how many turns the clinician has already spoken.
func clinicianGuidance(clinicianTurns int) string {
	idx := clinicianTurns / exchangesPerTopic
	if idx >= len(visitAgenda) {
		idx = len(visitAgenda) - 1
	}
	t := visitAgenda[idx]
	return "Current agenda item: " + t.name + ". " + t.lead +
		" If the patient asked something, answer in one short sentence first. Keep 2-5 sentences, no lists."
}

const patientGuidance = "Speak naturally in 1-2 sentences. Answer the doctor's last point directly; " +
	"ask one short follow-up question at most. Stay consistent with your persona."
