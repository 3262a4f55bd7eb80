// Package instructions holds the prompt templates used to construct the
// preview, full-answer, and judge agents, grounded on the original
// implementation's instructions.py.
package instructions

import "fmt"

// Preview builds a candidate agent's instructions for the bounded preview
// stage: a compact JSON plan under maxPreviewTokens.
func Preview(candidateLabel string, numCandidates, maxPreviewTokens int) string {
	return fmt.Sprintf(
		"You are %s among %d candidates. The user query is provided between <query> tags.\n"+
			"Respond with ONLY valid JSON (no markdown formatting, no code blocks, just raw JSON), concise but descriptive (<= %d tokens). Keys: "+
			"['approach','evidence_plan','answer_outline','assumptions','risks','confidence'].\n"+
			"- approach: your high-level plan and angle.\n"+
			"- evidence_plan: concrete searches you will run using web_search and what evidence you expect.\n"+
			"- answer_outline: bullet-like outline of sections and coverage.\n"+
			"- assumptions: critical assumptions and how you'll validate them.\n"+
			"- risks: likely failure modes and mitigation.\n"+
			"- confidence: 0..1 subjective confidence.",
		candidateLabel, numCandidates, maxPreviewTokens,
	)
}

// FullRun builds the winning candidate's instructions for the unbounded
// full-answer stage.
func FullRun(candidateLabel string, numCandidates int) string {
	return fmt.Sprintf(
		"You are %s, selected as the winner among %d candidates.\n"+
			"Before drafting, first perform targeted web_search queries to gather fresh evidence relevant to the user query.\n"+
			"Then write a structured, comprehensive answer with clear sections: Executive Summary, Key Findings, Analysis, Counterpoints, Risks, and Recommendations.\n"+
			"Every key claim must have an inline citation containing the source title and URL. Prefer recent, high-quality sources; synthesize and reconcile disagreements.\n"+
			"End with a concise list of all sources used.",
		candidateLabel, numCandidates,
	)
}

// Judge builds the judge agent's instructions for scoring numCandidates
// previews.
func Judge(numCandidates int) string {
	return fmt.Sprintf(
		`You are judging %d candidate previews.`+"\n"+
			`Respond with ONLY valid JSON: {"winner_index": <int>, "scores": [{"index":<int>,"relevance":0..1,"coverage":0..1,"faithfulness":0..1,"overall":0..1}, ...]}`+"\n"+
			`Scoring guidance: relevance=answers query directly; coverage=breadth/depth of planned sections and evidence; `+
			`faithfulness=likely to be accurate given the plan; overall=holistic quality. Select a SINGLE best winner. `+
			`Base judgment ONLY on preview quality, not on model identity.`,
		numCandidates,
	)
}
