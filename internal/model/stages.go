package model

// Typed payloads flowing between pipeline stages. Each stage's output must
// conform to the schema the next stage expects; the invoker enforces this.

// NormalizedContent is the output of the normalize stage.
type NormalizedContent struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary,omitempty"`
	Body     string   `json:"body"`
	Keywords []string `json:"keywords,omitempty"`
}

// ArtifactSpec is the output of the specify stage: a structural plan for the
// artifact the render stage will produce.
type ArtifactSpec struct {
	Title    string        `json:"title"`
	Audience string        `json:"audience,omitempty"`
	Tone     string        `json:"tone,omitempty"`
	Sections []SpecSection `json:"sections"`
}

// SpecSection is one planned section of the artifact.
type SpecSection struct {
	Heading string   `json:"heading"`
	Intent  string   `json:"intent,omitempty"`
	Points  []string `json:"points,omitempty"`
}

// Scorecard is the output of the validate stage: an overall score plus
// per-criterion sub-scores and the issues found.
type Scorecard struct {
	Overall  float64          `json:"overall"`
	Criteria []CriterionScore `json:"criteria"`
	Issues   []string         `json:"issues,omitempty"`
}

// CriterionScore is one sub-criterion verdict inside a scorecard.
type CriterionScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Note  string  `json:"note,omitempty"`
}

// TopIssues returns at most n issues for audit records and progress messages.
func (sc *Scorecard) TopIssues(n int) []string {
	if len(sc.Issues) <= n {
		return sc.Issues
	}
	return sc.Issues[:n]
}

// StageInput carries everything a stage call may need: the submission, prior
// stage outputs, and — for revise only — the diagnostics or instructions that
// motivated the revision.
type StageInput struct {
	SourceContent string
	Normalized    *NormalizedContent
	Spec          *ArtifactSpec
	Artifact      string
	Scorecard     *Scorecard
	Instructions  string
}
