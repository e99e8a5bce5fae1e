package runtime

import (
	"errors"
	"fmt"
)

// StepKind selects the behavior of a step.
type StepKind string

const (
	KindExtractURL   StepKind = "extract_url"
	KindExtractFile  StepKind = "extract_file"
	KindSendEmail    StepKind = "send_email"
	KindCreateEvent  StepKind = "create_event"
	KindSendSMS      StepKind = "send_sms"
	KindChatResponse StepKind = "chat_response"
	KindWait         StepKind = "wait"
	KindCondition    StepKind = "condition"
	KindHTTPCall     StepKind = "http_call"
)

// StepKinds lists every kind the runner knows how to dispatch.
var StepKinds = []StepKind{
	KindExtractURL,
	KindExtractFile,
	KindSendEmail,
	KindCreateEvent,
	KindSendSMS,
	KindChatResponse,
	KindWait,
	KindCondition,
	KindHTTPCall,
}

func (k StepKind) Valid() bool {
	for _, known := range StepKinds {
		if k == known {
			return true
		}
	}
	return false
}

type Workflow struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name,omitempty" json:"name,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Trigger     Trigger `yaml:"trigger" json:"trigger"`
	Steps       []Step  `yaml:"steps" json:"steps"`
}

// Trigger is descriptive only; the engine starts a run when asked to.
type Trigger struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

type Step struct {
	ID          string         `yaml:"id" json:"id"`
	Kind        StepKind       `yaml:"type" json:"type"`
	Config      map[string]any `yaml:"config" json:"config"`
	Next        string         `yaml:"next,omitempty" json:"next,omitempty"`
	NextIfTrue  string         `yaml:"nextIfTrue,omitempty" json:"nextIfTrue,omitempty"`
	NextIfFalse string         `yaml:"nextIfFalse,omitempty" json:"nextIfFalse,omitempty"`
}

// Step returns the step with the given id.
func (w *Workflow) Step(id string) (*Step, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// FirstStep returns the entry point of the workflow, which is always the
// first element of Steps.
func (w *Workflow) FirstStep() (*Step, bool) {
	if len(w.Steps) == 0 {
		return nil, false
	}
	return &w.Steps[0], true
}

// Validate reports every structural problem of the definition at once.
// A workflow that passes Validate can still fail at run time, for example
// when a templated config value resolves to something unusable.
func (w *Workflow) Validate() error {
	var errs []error

	if w.ID == "" {
		errs = append(errs, errors.New("workflow id is required"))
	}
	if len(w.Steps) == 0 {
		errs = append(errs, errors.New("workflow has no steps"))
	}

	seen := make(map[string]bool, len(w.Steps))
	for i, s := range w.Steps {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("step %d: id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("step %s: duplicate id", s.ID))
		}
		seen[s.ID] = true

		if !s.Kind.Valid() {
			errs = append(errs, fmt.Errorf("step %s: unknown type %q", s.ID, s.Kind))
		}

		if s.Kind == KindCondition {
			if s.Next != "" {
				errs = append(errs, fmt.Errorf("step %s: condition steps use nextIfTrue/nextIfFalse, not next", s.ID))
			}
		} else if s.NextIfTrue != "" || s.NextIfFalse != "" {
			errs = append(errs, fmt.Errorf("step %s: nextIfTrue/nextIfFalse are only valid on condition steps", s.ID))
		}
	}

	for _, s := range w.Steps {
		for _, target := range []string{s.Next, s.NextIfTrue, s.NextIfFalse} {
			if target != "" && !seen[target] {
				errs = append(errs, fmt.Errorf("step %s: references unknown step %q", s.ID, target))
			}
		}
	}

	return errors.Join(errs...)
}
