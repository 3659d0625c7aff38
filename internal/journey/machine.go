// Package journey drives the contributor's screen sequence as a pure
// (state, event) -> state reducer. It performs no I/O: the submission
// network call happens outside and reports back via EventSubmitSucceeded.
package journey

import (
	"errors"
	"fmt"

	"github.com/smallplates/collect/internal/domain"
)

// Step is one screen of the journey, in order.
type Step int

const (
	StepWelcome Step = iota
	StepIntroInfo
	StepTips // informational interstitial, no input
	StepRecipeForm
	StepSummary
	StepSuccess
)

var stepNames = map[Step]string{
	StepWelcome:    "welcome",
	StepIntroInfo:  "intro_info",
	StepTips:       "tips",
	StepRecipeForm: "recipe_form",
	StepSummary:    "summary",
	StepSuccess:    "success",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Heading is the anchor id of the screen's heading. Focus moves there on
// every transition so screen readers announce the new screen.
func (s Step) Heading() string {
	return s.String() + "-heading"
}

// State is the single mutable value of a visitor's session.
type State struct {
	Step      Step               `json:"step_index"`
	Draft     domain.RecipeDraft `json:"draft"`
	Dirty     bool               `json:"dirty"`
	Submitted bool               `json:"submitted"`
}

// New returns a fresh journey at the Welcome screen.
func New() State {
	return State{Step: StepWelcome}
}

// EventType enumerates the reducer's inputs.
type EventType string

const (
	EventNext            EventType = "next"
	EventBack            EventType = "back"
	EventEditField       EventType = "edit_field"
	EventSubmitSucceeded EventType = "submit_succeeded"
	EventAddAnother      EventType = "add_another"
	EventDone            EventType = "done"
)

// Event is one journey input. Field/Value are only read for EventEditField.
type Event struct {
	Type  EventType `json:"type"`
	Field string    `json:"field,omitempty"`
	Value string    `json:"value,omitempty"`
}

// Transition describes what the reducer did, including the focus target the
// UI must move to. Exited means the visitor left the flow entirely.
type Transition struct {
	From         Step
	To           Step
	Exited       bool
	FocusHeading string
}

// ErrInvalidTransition is returned for events that have no edge from the
// current step.
var ErrInvalidTransition = errors.New("invalid journey transition")

// Reduce applies ev to s. On error the returned state is s unchanged.
func Reduce(s State, ev Event) (State, Transition, error) {
	switch ev.Type {
	case EventNext:
		return next(s)
	case EventBack:
		return back(s)
	case EventEditField:
		return edit(s, ev)
	case EventSubmitSucceeded:
		return submitted(s)
	case EventAddAnother:
		return addAnother(s)
	case EventDone:
		return done(s)
	default:
		return s, Transition{}, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Type)
	}
}

func next(s State) (State, Transition, error) {
	switch s.Step {
	case StepWelcome, StepIntroInfo, StepTips:
		return move(s, s.Step+1)
	case StepRecipeForm:
		// Guard: all structured required fields must be non-empty after
		// trimming before the visitor may review.
		if missing := s.Draft.MissingFields(); len(missing) > 0 {
			return s, Transition{}, &domain.ValidationError{Fields: missing}
		}
		return move(s, StepSummary)
	default:
		return s, Transition{}, fmt.Errorf("%w: next from %s", ErrInvalidTransition, s.Step)
	}
}

func back(s State) (State, Transition, error) {
	switch s.Step {
	case StepWelcome:
		// Back from the first screen exits the flow and returns the
		// visitor to the token landing page.
		return s, Transition{From: StepWelcome, To: StepWelcome, Exited: true}, nil
	case StepIntroInfo, StepTips, StepRecipeForm, StepSummary:
		return move(s, s.Step-1)
	default:
		return s, Transition{}, fmt.Errorf("%w: back from %s", ErrInvalidTransition, s.Step)
	}
}

func edit(s State, ev Event) (State, Transition, error) {
	if s.Step != StepRecipeForm {
		return s, Transition{}, fmt.Errorf("%w: edit on %s", ErrInvalidTransition, s.Step)
	}
	switch ev.Field {
	case "recipe_name":
		s.Draft.RecipeName = ev.Value
	case "ingredients":
		s.Draft.Ingredients = ev.Value
	case "instructions":
		s.Draft.Instructions = ev.Value
	case "personal_note":
		s.Draft.PersonalNote = ev.Value
	default:
		return s, Transition{}, fmt.Errorf("%w: unknown field %q", ErrInvalidTransition, ev.Field)
	}
	s.Dirty = true
	t := Transition{From: s.Step, To: s.Step, FocusHeading: ""}
	return s, t, nil
}

// submitted records a completed submission. It is valid from Summary (the
// ordinary path) and directly from RecipeForm (the paste-to-submit
// shortcut, which bypasses Summary and its guard).
func submitted(s State) (State, Transition, error) {
	if s.Step != StepSummary && s.Step != StepRecipeForm {
		return s, Transition{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, s.Step)
	}
	from := s.Step
	s.Step = StepSuccess
	s.Submitted = true
	s.Dirty = false
	t := Transition{From: from, To: StepSuccess, FocusHeading: StepSuccess.Heading()}
	return s, t, nil
}

// addAnother resets to a blank draft at RecipeForm; identity is unchanged
// (it lives on the session, not in journey state).
func addAnother(s State) (State, Transition, error) {
	if s.Step != StepSuccess {
		return s, Transition{}, fmt.Errorf("%w: add_another from %s", ErrInvalidTransition, s.Step)
	}
	fresh := State{Step: StepRecipeForm}
	t := Transition{From: StepSuccess, To: StepRecipeForm, FocusHeading: StepRecipeForm.Heading()}
	return fresh, t, nil
}

func done(s State) (State, Transition, error) {
	if s.Step != StepSuccess {
		return s, Transition{}, fmt.Errorf("%w: done from %s", ErrInvalidTransition, s.Step)
	}
	return s, Transition{From: StepSuccess, To: StepSuccess, Exited: true}, nil
}

func move(s State, to Step) (State, Transition, error) {
	from := s.Step
	s.Step = to
	t := Transition{From: from, To: to, FocusHeading: to.Heading()}
	return s, t, nil
}

// FocusFunc receives every forward/back transition so the UI layer can move
// focus to the new screen's heading. Field edits do not retarget focus.
type FocusFunc func(Transition)

// Machine couples a State with the focus side effect's invocation point.
// The reducer itself stays pure.
type Machine struct {
	State State
	Focus FocusFunc
}

// Apply reduces an event and, on any step change or exit, invokes the focus
// hook.
func (m *Machine) Apply(ev Event) (Transition, error) {
	next, t, err := Reduce(m.State, ev)
	if err != nil {
		return Transition{}, err
	}
	m.State = next
	if m.Focus != nil && (t.From != t.To || t.Exited) {
		m.Focus(t)
	}
	return t, nil
}
