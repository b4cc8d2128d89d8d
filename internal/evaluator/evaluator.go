// File: internal/evaluator/evaluator.go
package evaluator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
)

// Pattern names a recurring interaction strategy. Success rates are tracked
// per pattern and drift with observed outcomes.
type Pattern string

const (
	PatternDirectNavigation Pattern = "direct_navigation"
	PatternFormInteraction  Pattern = "form_interaction"
	PatternContentScanning  Pattern = "content_scanning"
	PatternSpatialMemory    Pattern = "spatial_memory"
)

// Initial success-rate priors per pattern. Starting points only; RecordOutcome
// walks them up and down inside [minSuccessRate, maxSuccessRate].
var initialSuccessRate = map[Pattern]float64{
	PatternDirectNavigation: 0.90,
	PatternFormInteraction:  0.85,
	PatternContentScanning:  0.95,
	PatternSpatialMemory:    0.80,
}

// patternCapabilities lists the action types each pattern is equipped for.
// An action outside its pattern's capabilities is still executable, it just
// scores with the low support factor.
var patternCapabilities = map[Pattern][]schemas.ActionType{
	PatternDirectNavigation: {schemas.ActionLeftClick, schemas.ActionKey, schemas.ActionScreenshot},
	PatternFormInteraction:  {schemas.ActionTypeText, schemas.ActionKey, schemas.ActionLeftClick},
	PatternContentScanning:  {schemas.ActionScreenshot, schemas.ActionCursorPosition},
	PatternSpatialMemory: {
		schemas.ActionMouseMove, schemas.ActionLeftClickDrag, schemas.ActionLeftClick,
		schemas.ActionRightClick, schemas.ActionMiddleClick, schemas.ActionDoubleClick,
	},
}

const (
	fitWeight         = 0.6
	reliabilityWeight = 0.4

	supportedFactor   = 0.8
	unsupportedFactor = 0.2

	successRateStep = 0.01
	minSuccessRate  = 0.10
	maxSuccessRate  = 0.99

	// Distance beyond which mouse travel contributes nothing to fit.
	maxUsefulTravel = 2000.0

	// planLength caps how many ranked candidates a plan returns.
	planLength = 3
)

// Candidate pairs a proposed action with the element it aims at, when known.
type Candidate struct {
	Action schemas.Action
	Target *schemas.ElementState
}

// Evaluation is the heuristic verdict for one candidate under one goal.
type Evaluation struct {
	Candidate       Candidate
	Pattern         Pattern
	Fit             float64
	Utility         float64
	Confidence      float64
	PredictedEffect string
}

// Evaluator ranks candidate actions heuristically. Its view of the page is
// opportunistic: stale observations degrade ranking quality, never
// correctness, because the executor re-resolves live state before acting.
// It is advisory throughout and never gates model-proposed tool calls.
type Evaluator struct {
	log *zap.Logger

	mu          sync.Mutex
	successRate map[Pattern]float64
	state       *schemas.BrowserState
	cursor      *schemas.Point
}

// NewEvaluator starts every pattern at its prior success rate.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	rates := make(map[Pattern]float64, len(initialSuccessRate))
	for p, r := range initialSuccessRate {
		rates[p] = r
	}
	return &Evaluator{
		log:         logger.Named("evaluator"),
		successRate: rates,
	}
}

// ObserveState records the latest page snapshot and cursor position.
func (e *Evaluator) ObserveState(ctx context.Context, state *schemas.BrowserState, cursor *schemas.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.cursor = cursor
}

// SuccessRate returns the tracked rate for a pattern, or the spatial-memory
// prior for an unknown one.
func (e *Evaluator) SuccessRate(p Pattern) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.successRate[p]; ok {
		return r
	}
	return initialSuccessRate[PatternSpatialMemory]
}

// RecordOutcome nudges a pattern's success rate by a fixed step per observed
// outcome, clamped so no pattern is ever written off entirely or trusted
// absolutely.
func (e *Evaluator) RecordOutcome(p Pattern, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.successRate[p]
	if !ok {
		r = initialSuccessRate[PatternSpatialMemory]
	}
	if success {
		r += successRateStep
	} else {
		r -= successRateStep
	}
	e.successRate[p] = math.Min(maxSuccessRate, math.Max(minSuccessRate, r))
}

// InferPattern classifies goal plus action into the strategy pattern whose
// track record should gate it. Goal keywords win; the action type breaks ties.
func InferPattern(goal string, action schemas.Action) Pattern {
	g := strings.ToLower(goal)
	switch {
	case containsAny(g, "navigate", "open ", "go to", "visit"):
		return PatternDirectNavigation
	case containsAny(g, "fill", "type", "enter ", "submit", "form", "search for"):
		return PatternFormInteraction
	case containsAny(g, "read", "find", "scan", "look", "extract", "what"):
		return PatternContentScanning
	}

	switch action.Type {
	case schemas.ActionScreenshot, schemas.ActionCursorPosition:
		return PatternContentScanning
	case schemas.ActionTypeText:
		return PatternFormInteraction
	case schemas.ActionKey:
		return PatternFormInteraction
	default:
		return PatternSpatialMemory
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// supports reports whether the pattern's capabilities cover the action type.
func supports(p Pattern, t schemas.ActionType) bool {
	for _, allowed := range patternCapabilities[p] {
		if allowed == t {
			return true
		}
	}
	return false
}

// Evaluate scores one candidate under a goal. Utility is a weighted blend of
// situational fit and reliability, where reliability is the capability
// support factor times the pattern's tracked success rate.
func (e *Evaluator) Evaluate(goal string, c Candidate) Evaluation {
	p := InferPattern(goal, c.Action)

	support := unsupportedFactor
	if supports(p, c.Action.Type) {
		support = supportedFactor
	}
	reliability := support * e.SuccessRate(p)
	fit := e.fit(c)

	return Evaluation{
		Candidate:       c,
		Pattern:         p,
		Fit:             fit,
		Utility:         fitWeight*fit + reliabilityWeight*reliability,
		Confidence:      reliability,
		PredictedEffect: predictEffect(c),
	}
}

// Rank scores all candidates under the goal and orders them by descending
// utility. Ties keep the caller's original order.
func (e *Evaluator) Rank(goal string, candidates []Candidate) []Evaluation {
	scored := make([]Evaluation, len(candidates))
	for i, c := range candidates {
		scored[i] = e.Evaluate(goal, c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Utility > scored[j].Utility
	})
	return scored
}

// PlanActionSequence returns the top-ranked candidates as a short advisory
// plan; nothing downstream executes it blindly.
func (e *Evaluator) PlanActionSequence(goal string, candidates []Candidate) []Evaluation {
	ranked := e.Rank(goal, candidates)
	if len(ranked) > planLength {
		ranked = ranked[:planLength]
	}
	return ranked
}

// fit estimates how well the candidate matches the current page snapshot.
func (e *Evaluator) fit(c Candidate) float64 {
	e.mu.Lock()
	cursor := e.cursor
	state := e.state
	e.mu.Unlock()

	switch c.Action.Type {
	case schemas.ActionScreenshot:
		// Observation is almost always worthwhile.
		return 0.9
	case schemas.ActionCursorPosition:
		return 0.5
	case schemas.ActionTypeText, schemas.ActionKey:
		if state != nil && state.ActiveElement != nil && state.ActiveElement.Type == "input" {
			return 0.9
		}
		return 0.4
	case schemas.ActionClose:
		return 0.1
	}

	// Pointer actions: fit is dominated by travel economy from the last
	// active position, plus a bonus when the destination is interactable.
	fit := 0.5
	if c.Action.Coordinates != nil {
		if from := lastActivePosition(state, cursor); from != nil {
			fit = movementEfficiency(*from, *c.Action.Coordinates)
		}
	}
	if c.Target != nil && c.Target.IsInteractable {
		fit = math.Min(1, fit+0.2)
	}
	return fit
}

// lastActivePosition prefers the observed active element's position and falls
// back to the tracked cursor.
func lastActivePosition(state *schemas.BrowserState, cursor *schemas.Point) *schemas.Point {
	if state != nil && state.ActiveElement != nil {
		p := state.ActiveElement.Position
		return &p
	}
	return cursor
}

// movementEfficiency decays linearly with travel distance and bottoms out at
// zero past maxUsefulTravel logical pixels.
func movementEfficiency(from, to schemas.Point) float64 {
	d := math.Hypot(to.X-from.X, to.Y-from.Y)
	return math.Max(0, 1-d/maxUsefulTravel)
}

func predictEffect(c Candidate) string {
	switch c.Action.Type {
	case schemas.ActionScreenshot:
		return "captures the current viewport"
	case schemas.ActionCursorPosition:
		return "reports the cursor position"
	case schemas.ActionTypeText:
		return fmt.Sprintf("types %d characters into the focused element", len([]rune(c.Action.Text)))
	case schemas.ActionKey:
		return fmt.Sprintf("presses %q", c.Action.Text)
	case schemas.ActionClose:
		return "ends the browser session"
	case schemas.ActionMouseMove:
		return "repositions the cursor"
	case schemas.ActionLeftClickDrag:
		return "drags to the target position"
	default:
		if c.Target != nil && c.Target.Text != "" {
			return fmt.Sprintf("activates %q", c.Target.Text)
		}
		return "activates the element under the cursor"
	}
}
