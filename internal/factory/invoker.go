package factory

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pageforge/api/internal/model"
)

// StageClient is the opaque external generation call. Implementations must
// not leak provider-specific behavior into the core; tests inject fakes that
// simulate malformed output, timeouts, and slow responses.
type StageClient interface {
	Call(ctx context.Context, kind model.StageKind, system, user string) (string, error)
}

// StageOutput is a stage result normalized into the schema the next stage
// expects. Exactly one payload field is set, matching Kind.
type StageOutput struct {
	Kind       model.StageKind
	Normalized *model.NormalizedContent
	Spec       *model.ArtifactSpec
	Artifact   string
	Scorecard  *model.Scorecard
}

// Invoker wraps a single external stage call: build the prompt, bound the
// wait, unwrap the raw response, and decode it into the stage's schema. It
// knows nothing about retries, job status, or other stages.
type Invoker struct {
	client  StageClient
	timeout time.Duration
}

func NewInvoker(client StageClient, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Invoker{client: client, timeout: timeout}
}

// Invoke runs one stage call and returns its normalized output or a
// *StageError. It has no side effects beyond the external call.
func (iv *Invoker) Invoke(ctx context.Context, kind model.StageKind, in *model.StageInput) (*StageOutput, error) {
	system, user, err := buildPrompt(kind, in)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, iv.timeout)
	defer cancel()

	raw, err := iv.client.Call(callCtx, kind, system, user)
	if err != nil {
		return nil, upstreamUnavailable(kind, err)
	}

	payload := unwrapFences(raw)
	if !strings.HasPrefix(payload, envelopeMarker(kind)) {
		return nil, malformedOutput(kind, "response does not start with the expected envelope", nil)
	}

	return iv.decode(kind, payload)
}

// envelopeMarker is the prefix a stage's unwrapped payload must carry:
// structured stages answer with a JSON object, artifact stages with markup.
func envelopeMarker(kind model.StageKind) string {
	switch kind {
	case model.StageRender, model.StageRevise:
		return "<"
	default:
		return "{"
	}
}

// unwrapFences deterministically strips a surrounding markdown code fence
// (with an optional language tag) from an external response.
func unwrapFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func (iv *Invoker) decode(kind model.StageKind, payload string) (*StageOutput, error) {
	out := &StageOutput{Kind: kind}

	switch kind {
	case model.StageNormalize:
		var nc model.NormalizedContent
		if err := json.Unmarshal([]byte(payload), &nc); err != nil {
			return nil, malformedOutput(kind, "invalid normalized-content JSON", err)
		}
		if strings.TrimSpace(nc.Body) == "" {
			return nil, validationFailed(kind, "normalized body is empty")
		}
		out.Normalized = &nc

	case model.StageSpecify:
		var spec model.ArtifactSpec
		if err := json.Unmarshal([]byte(payload), &spec); err != nil {
			return nil, malformedOutput(kind, "invalid artifact-spec JSON", err)
		}
		if strings.TrimSpace(spec.Title) == "" {
			return nil, validationFailed(kind, "spec title is empty")
		}
		if len(spec.Sections) == 0 {
			return nil, validationFailed(kind, "spec has no sections")
		}
		out.Spec = &spec

	case model.StageRender, model.StageRevise:
		out.Artifact = payload

	case model.StageValidate:
		var sc model.Scorecard
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			return nil, malformedOutput(kind, "invalid scorecard JSON", err)
		}
		if len(sc.Criteria) == 0 {
			return nil, validationFailed(kind, "scorecard has no criteria")
		}
		out.Scorecard = &sc

	default:
		return nil, malformedOutput(kind, "unknown stage kind", nil)
	}

	return out, nil
}
