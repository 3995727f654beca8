package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pageforge/api/internal/model"
)

// Prompt construction for each stage. Every prompt demands a bare payload
// (JSON object or HTML document) so the invoker's envelope check holds.

func buildPrompt(kind model.StageKind, in *model.StageInput) (system, user string, err error) {
	switch kind {
	case model.StageNormalize:
		return systemNormalize, userNormalize(in), nil
	case model.StageSpecify:
		user, err := userSpecify(in)
		return systemSpecify, user, err
	case model.StageRender:
		user, err := userRender(in)
		return systemRender, user, err
	case model.StageValidate:
		return systemValidate, userValidate(in), nil
	case model.StageRevise:
		return systemRevise, userRevise(in), nil
	default:
		return "", "", malformedOutput(kind, "unknown stage kind", nil)
	}
}

const systemNormalize = `You are a content editor. You clean up raw, unstructured submissions into
well-organized source material. Always answer with a single valid JSON object and nothing else.
Do not wrap the JSON in markdown fences.`

func userNormalize(in *model.StageInput) string {
	return fmt.Sprintf(`Normalize the following submission. Extract a short title, a one-paragraph
summary, the cleaned body text, and up to 8 keywords.

Output as JSON: {"title": "...", "summary": "...", "body": "...", "keywords": ["..."]}

Submission:
%s`, in.SourceContent)
}

const systemSpecify = `You are an information architect. You turn normalized source material into a
structural plan for a single standalone web page. Always answer with a single valid JSON object and
nothing else. Do not wrap the JSON in markdown fences.`

func userSpecify(in *model.StageInput) (string, error) {
	normalized, err := json.Marshal(in.Normalized)
	if err != nil {
		return "", malformedOutput(model.StageSpecify, "failed to marshal normalized content", err)
	}
	return fmt.Sprintf(`Plan a page for the following normalized content. Choose an audience and tone,
and break the material into 3-7 sections, each with a heading, its intent, and the key points it
must cover.

Output as JSON: {"title": "...", "audience": "...", "tone": "...",
"sections": [{"heading": "...", "intent": "...", "points": ["..."]}]}

Normalized content:
%s`, normalized), nil
}

const systemRender = `You are a web author. You produce complete, standalone HTML documents from a
structural plan. Answer with the HTML document only: it must start with <!doctype html> and contain
no commentary and no markdown fences.`

func userRender(in *model.StageInput) (string, error) {
	spec, err := json.Marshal(in.Spec)
	if err != nil {
		return "", malformedOutput(model.StageRender, "failed to marshal artifact spec", err)
	}
	return fmt.Sprintf(`Render the page described by this plan, drawing the prose from the normalized
body. Every planned section must appear with its heading.

Plan:
%s

Normalized body:
%s`, spec, in.Normalized.Body), nil
}

const systemValidate = `You are a strict quality reviewer for generated pages. You score artifacts
against fixed criteria. Always answer with a single valid JSON object and nothing else. Do not wrap
the JSON in markdown fences.`

func userValidate(in *model.StageInput) string {
	return fmt.Sprintf(`Score the following HTML artifact from 0-100 overall and per criterion:
structure (sections and headings match the plan), fidelity (content matches the source material),
clarity (readable, well-organized prose), completeness (nothing planned is missing).
List the concrete issues found, worst first.

Output as JSON: {"overall": 0-100,
"criteria": [{"name": "structure", "score": 0-100, "note": "..."}, ...],
"issues": ["..."]}

Artifact:
%s`, in.Artifact)
}

const systemRevise = `You are a web author revising a generated page. Apply the requested fixes while
keeping everything that was not criticized. Answer with the full revised HTML document only: it must
start with <!doctype html> and contain no commentary and no markdown fences.`

func userRevise(in *model.StageInput) string {
	// A human's explicit instructions outrank the automated diagnostics.
	if in.Instructions != "" {
		return fmt.Sprintf(`Revise the following page according to these instructions from the reviewer:
%s

Current page:
%s`, in.Instructions, in.Artifact)
	}

	var issues string
	if in.Scorecard != nil {
		issues = strings.Join(in.Scorecard.Issues, "\n- ")
	}
	return fmt.Sprintf(`Revise the following page to fix the issues found by quality review:
- %s

Current page:
%s`, issues, in.Artifact)
}
