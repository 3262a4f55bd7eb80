package judge

// Scores is one candidate's evaluation, each field in [0,1]. Overall is
// holistic preview quality, not an average of the other three.
type Scores struct {
	Index        int     `json:"index"`
	Relevance    float64 `json:"relevance"`
	Coverage     float64 `json:"coverage"`
	Faithfulness float64 `json:"faithfulness"`
	Overall      float64 `json:"overall"`
}

// Verdict is the judge's full output: a single winner plus per-candidate
// scores. Scores may be fewer than the candidate count; missing indices
// default to overall=0 when computing candidate order.
type Verdict struct {
	WinnerIndex int      `json:"winner_index"`
	Scores      []Scores `json:"scores"`
}
