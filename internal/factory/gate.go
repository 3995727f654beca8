package factory

import "github.com/pageforge/api/internal/model"

// GateConfig bounds the quality-gate retry loop.
type GateConfig struct {
	MaxAttempts   int
	PassThreshold float64
	CriticalFloor float64
}

func (c GateConfig) withDefaults() GateConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.PassThreshold <= 0 {
		c.PassThreshold = 85
	}
	if c.CriticalFloor <= 0 {
		c.CriticalFloor = 60
	}
	return c
}

// gateState is the explicit state of the retry loop. Modelling it this way
// makes "no revise after the final failed attempt" structural: only
// gateRevising permits a revise call, and observe never returns it once the
// attempt bound is reached.
type gateState int

const (
	gateAttempting gateState = iota
	gatePassed
	gateRevising
	gateExhausted
)

type qualityGate struct {
	cfg     GateConfig
	attempt int
	state   gateState
}

func newQualityGate(cfg GateConfig) *qualityGate {
	return &qualityGate{cfg: cfg.withDefaults()}
}

// begin opens the next attempt and returns its 1-based number.
func (g *qualityGate) begin() int {
	g.attempt++
	g.state = gateAttempting
	return g.attempt
}

// meets applies the conjunctive pass criterion: the overall score must reach
// the pass threshold AND no single criterion may fall below the critical
// floor. A high average with one catastrophic sub-score still fails.
func (g *qualityGate) meets(sc *model.Scorecard) bool {
	if sc == nil || sc.Overall < g.cfg.PassThreshold {
		return false
	}
	for _, c := range sc.Criteria {
		if c.Score < g.cfg.CriticalFloor {
			return false
		}
	}
	return true
}

// observe records the verdict of the open attempt and moves the gate.
func (g *qualityGate) observe(passed bool) gateState {
	switch {
	case passed:
		g.state = gatePassed
	case g.attempt >= g.cfg.MaxAttempts:
		g.state = gateExhausted
	default:
		g.state = gateRevising
	}
	return g.state
}
