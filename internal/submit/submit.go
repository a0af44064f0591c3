// Package submit drives one posting through the external application
// channel in a bounded number of steps.
package submit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/channel"
	"github.com/mazholin/jobpilot/internal/job"
	"github.com/mazholin/jobpilot/internal/logger"
)

// State of the submission flow. The flow is not a strict sequential FSM:
// each step probes the channel's current capabilities in a fixed priority
// order and takes the first applicable action.
type State string

const (
	StateDiscovered State = "discovered"
	StateFormFill   State = "form_fill"
	StateScreening  State = "screening_questions"
	StateReady      State = "ready_to_submit"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

// maxSteps bounds the probe loop. Exhausting the budget without reaching a
// terminal state is a failure.
const maxSteps = 5

// Result is the terminal outcome of one submission run.
type Result struct {
	State State
	Steps int
	// Error is non-empty whenever State is StateFailed.
	Error string
}

func (r *Result) Confirmed() bool {
	return r.State == StateConfirmed
}

// StateMachine runs submission attempts over an application channel.
type StateMachine struct {
	channel channel.Channel
	logger  *zap.Logger
}

func New(ch channel.Channel, log *zap.Logger) *StateMachine {
	return &StateMachine{channel: ch, logger: log}
}

// Run applies to one posting. It never returns an error: every failure mode
// terminates in a StateFailed result carrying a descriptive message, so a
// single job's failure never aborts the caller's batch.
func (m *StateMachine) Run(ctx context.Context, posting *job.Posting, coverLetter string) *Result {
	log := logger.WithFields(m.logger, logger.JobFields(posting.ID, posting.Company)...)

	if err := m.channel.StartSession(ctx); err != nil {
		return failed(0, fmt.Errorf("start session: %w", err))
	}
	defer m.channel.EndSession(ctx)

	if err := m.channel.Navigate(ctx, posting.URL); err != nil {
		return failed(0, fmt.Errorf("navigate to posting: %w", err))
	}

	if found, err := m.channel.DetectApplyAction(ctx); err != nil {
		return failed(0, fmt.Errorf("probe apply action: %w", err))
	} else if found {
		if err := m.channel.InvokeApply(ctx); err != nil {
			return failed(0, fmt.Errorf("invoke apply: %w", err))
		}
		log.Debug("apply action invoked")
	}

	state := StateDiscovered
	letterFilled := false

	for step := 1; step <= maxSteps; step++ {
		next, done, err := m.step(ctx, log, coverLetter, &letterFilled)
		if err != nil {
			return failed(step, err)
		}

		log.Debug("submission step",
			zap.Int("step", step),
			zap.String("from", string(state)),
			zap.String("to", string(next)),
		)
		state = next

		if done {
			return &Result{State: StateConfirmed, Steps: step}
		}
		if state == StateFailed {
			return failed(step, fmt.Errorf("no applicable action on current page"))
		}
	}

	return failed(maxSteps, fmt.Errorf("step budget (%d) exhausted without confirmation", maxSteps))
}

// step probes the channel in priority order and takes the first applicable
// action. It returns the state the action left the flow in, and done=true
// when a confirmation signal terminated the run.
func (m *StateMachine) step(ctx context.Context, log *zap.Logger, coverLetter string, letterFilled *bool) (State, bool, error) {
	if coverLetter != "" && !*letterFilled {
		fields, err := m.channel.DetectFormFields(ctx)
		if err != nil {
			return StateFailed, false, fmt.Errorf("probe form fields: %w", err)
		}
		if role, ok := pickLetterField(fields); ok {
			if err := m.channel.FillField(ctx, role, coverLetter); err != nil {
				return StateFailed, false, fmt.Errorf("fill %s: %w", role, err)
			}
			*letterFilled = true
			log.Debug("cover letter filled", zap.String("field_role", string(role)))
			return StateFormFill, false, nil
		}
	}

	questions, err := m.channel.DetectScreeningQuestions(ctx)
	if err != nil {
		return StateFailed, false, fmt.Errorf("probe screening questions: %w", err)
	}
	if answered, err := m.answerQuestions(ctx, log, questions); err != nil {
		return StateFailed, false, err
	} else if answered {
		return StateScreening, false, nil
	}

	if found, err := m.channel.DetectSubmitAction(ctx); err != nil {
		return StateFailed, false, fmt.Errorf("probe submit action: %w", err)
	} else if found {
		if err := m.channel.InvokeSubmit(ctx); err != nil {
			return StateFailed, false, fmt.Errorf("invoke submit: %w", err)
		}
		confirmed, err := m.channel.DetectConfirmation(ctx)
		if err != nil {
			return StateFailed, false, fmt.Errorf("probe confirmation: %w", err)
		}
		if confirmed {
			return StateConfirmed, true, nil
		}
		return StateReady, false, nil
	}

	if confirmed, err := m.channel.DetectConfirmation(ctx); err != nil {
		return StateFailed, false, fmt.Errorf("probe confirmation: %w", err)
	} else if confirmed {
		return StateConfirmed, true, nil
	}

	if found, err := m.channel.DetectNextAction(ctx); err != nil {
		return StateFailed, false, fmt.Errorf("probe next action: %w", err)
	} else if found {
		if err := m.channel.InvokeNext(ctx); err != nil {
			return StateFailed, false, fmt.Errorf("invoke next: %w", err)
		}
		return StateReady, false, nil
	}

	return StateFailed, false, nil
}

// answerQuestions answers every answerable question using the keyword
// policy. It reports whether any question was answered.
func (m *StateMachine) answerQuestions(ctx context.Context, log *zap.Logger, questions []channel.Question) (bool, error) {
	answered := false
	for _, question := range questions {
		choice, ok := answerFor(question)
		if !ok {
			log.Debug("skipping unrecognized screening question", zap.String("label", question.Label))
			continue
		}

		if err := m.channel.Answer(ctx, question, choice); err != nil {
			return false, fmt.Errorf("answer question %q: %w", question.Label, err)
		}
		answered = true
	}

	return answered, nil
}

// answerFor implements the screening keyword policy.
func answerFor(question channel.Question) (string, bool) {
	if question.Kind == channel.KindDropdown {
		// Unlabeled dropdowns get the first non-empty option.
		return "first", true
	}

	label := strings.ToLower(question.Label)
	switch {
	case strings.Contains(label, "authorized to work") && strings.Contains(label, "yes"):
		return "yes", true
	case strings.Contains(label, "require sponsorship") && strings.Contains(label, "no"):
		return "no", true
	case strings.Contains(label, "experience") && strings.Contains(label, "yes"):
		return "yes", true
	default:
		return "", false
	}
}

func pickLetterField(fields []channel.FormField) (channel.FieldRole, bool) {
	for _, role := range []channel.FieldRole{channel.RoleCoverLetter, channel.RoleMessage} {
		for _, field := range fields {
			if field.Role == role {
				return role, true
			}
		}
	}
	return "", false
}

func failed(steps int, err error) *Result {
	return &Result{
		State: StateFailed,
		Steps: steps,
		Error: err.Error(),
	}
}
