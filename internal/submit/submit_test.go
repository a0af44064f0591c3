package submit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/channel"
	"github.com/mazholin/jobpilot/internal/job"
)

// fakeChannel scripts deterministic probe responses. Each probe hook may be
// nil, meaning "nothing detected".
type fakeChannel struct {
	startErr error
	started  bool
	ended    bool

	fieldsFn    func(call int) []channel.FormField
	questionsFn func(call int) []channel.Question
	submitFn    func(call int) bool
	confirmFn   func(call int) bool
	nextFn      func(call int) bool

	fieldCalls    int
	questionCalls int
	submitCalls   int
	confirmCalls  int
	nextCalls     int
	nextInvokes   int

	filled  map[channel.FieldRole]string
	answers []string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{filled: make(map[channel.FieldRole]string)}
}

func (f *fakeChannel) StartSession(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeChannel) EndSession(context.Context) error {
	f.ended = true
	return nil
}

func (f *fakeChannel) Navigate(context.Context, string) error { return nil }

func (f *fakeChannel) DetectApplyAction(context.Context) (bool, error) { return true, nil }
func (f *fakeChannel) InvokeApply(context.Context) error              { return nil }

func (f *fakeChannel) DetectFormFields(context.Context) ([]channel.FormField, error) {
	f.fieldCalls++
	if f.fieldsFn == nil {
		return nil, nil
	}
	return f.fieldsFn(f.fieldCalls), nil
}

func (f *fakeChannel) FillField(_ context.Context, role channel.FieldRole, value string) error {
	f.filled[role] = value
	return nil
}

func (f *fakeChannel) DetectScreeningQuestions(context.Context) ([]channel.Question, error) {
	f.questionCalls++
	if f.questionsFn == nil {
		return nil, nil
	}
	return f.questionsFn(f.questionCalls), nil
}

func (f *fakeChannel) Answer(_ context.Context, question channel.Question, choice string) error {
	f.answers = append(f.answers, question.Label+"="+choice)
	return nil
}

func (f *fakeChannel) DetectSubmitAction(context.Context) (bool, error) {
	f.submitCalls++
	return f.submitFn != nil && f.submitFn(f.submitCalls), nil
}

func (f *fakeChannel) InvokeSubmit(context.Context) error { return nil }

func (f *fakeChannel) DetectConfirmation(context.Context) (bool, error) {
	f.confirmCalls++
	return f.confirmFn != nil && f.confirmFn(f.confirmCalls), nil
}

func (f *fakeChannel) DetectNextAction(context.Context) (bool, error) {
	f.nextCalls++
	return f.nextFn != nil && f.nextFn(f.nextCalls), nil
}

func (f *fakeChannel) InvokeNext(context.Context) error {
	f.nextInvokes++
	return nil
}

func testPosting() *job.Posting {
	return &job.Posting{ID: "j1", Title: "Go Developer", Company: "Acme", URL: "https://jobs.example.com/j1"}
}

func TestSessionStartFailure(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.startErr = errors.New("browser did not start")

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "")

	assert.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.Error, "start session")
	assert.False(t, ch.ended, "no session to end")
}

func TestHappyPathSubmitAndConfirm(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.submitFn = func(int) bool { return true }
	ch.confirmFn = func(int) bool { return true }

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "")

	require.Equal(t, StateConfirmed, result.State)
	assert.Equal(t, 1, result.Steps)
	assert.Empty(t, result.Error)
	assert.True(t, ch.ended, "session must be closed")
}

func TestCoverLetterFilledBeforeSubmit(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.fieldsFn = func(int) []channel.FormField {
		return []channel.FormField{{Role: channel.RoleCoverLetter}}
	}
	// Submit becomes available on the second probe, after the letter step.
	ch.submitFn = func(int) bool { return true }
	ch.confirmFn = func(int) bool { return true }

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "Dear Hiring Manager")

	require.Equal(t, StateConfirmed, result.State)
	assert.Equal(t, "Dear Hiring Manager", ch.filled[channel.RoleCoverLetter])
	assert.Equal(t, 2, result.Steps, "fill step then submit step")
}

func TestCoverLetterFilledOnlyOnce(t *testing.T) {
	t.Parallel()

	fills := 0
	ch := newFakeChannel()
	ch.fieldsFn = func(int) []channel.FormField {
		fills++
		return []channel.FormField{{Role: channel.RoleMessage}}
	}
	ch.nextFn = func(int) bool { return true }
	ch.confirmFn = func(call int) bool { return call >= 2 }

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "hello")

	require.Equal(t, StateConfirmed, result.State)
	assert.Equal(t, 1, fills, "form fields probed once while letter pending")
	assert.Equal(t, "hello", ch.filled[channel.RoleMessage])
}

func TestScreeningQuestionPolicy(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.questionsFn = func(call int) []channel.Question {
		if call > 1 {
			return nil
		}
		return []channel.Question{
			{ID: "q1", Kind: channel.KindRadio, Label: "Are you authorized to work in the US? Yes"},
			{ID: "q2", Kind: channel.KindRadio, Label: "Do you require sponsorship? No"},
			{ID: "q3", Kind: channel.KindRadio, Label: "Do you have 5 years of experience? Yes"},
			{ID: "q4", Kind: channel.KindRadio, Label: "What is your favorite color?"},
			{ID: "q5", Kind: channel.KindDropdown},
		}
	}
	ch.submitFn = func(int) bool { return true }
	ch.confirmFn = func(int) bool { return true }

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "")

	require.Equal(t, StateConfirmed, result.State)
	assert.Equal(t, []string{
		"Are you authorized to work in the US? Yes=yes",
		"Do you require sponsorship? No=no",
		"Do you have 5 years of experience? Yes=yes",
		"=first",
	}, ch.answers)
}

func TestConfirmationAlreadyPresent(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.confirmFn = func(int) bool { return true }

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "")

	require.Equal(t, StateConfirmed, result.State)
	assert.Equal(t, 1, result.Steps)
}

func TestStepBudgetExhausted(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.nextFn = func(int) bool { return true }

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "")

	require.Equal(t, StateFailed, result.State)
	assert.Equal(t, maxSteps, result.Steps)
	assert.Equal(t, maxSteps, ch.nextInvokes)
	assert.NotEmpty(t, result.Error, "budget exhaustion must carry an error message")
}

func TestNoApplicableAction(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()

	result := New(ch, zap.NewNop()).Run(context.Background(), testPosting(), "")

	require.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.Error, "no applicable action")
	assert.True(t, ch.ended)
}
