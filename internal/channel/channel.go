// Package channel abstracts the external application channel as a fixed
// capability set. Any concrete automation backend implements it uniformly,
// decoupling the submission flow from the driving technology.
package channel

import "context"

// FieldRole identifies a fillable form field by purpose rather than by
// selector.
type FieldRole string

const (
	RoleCoverLetter FieldRole = "cover_letter"
	RoleMessage     FieldRole = "message"
)

// FormField is a fillable field detected on the current page.
type FormField struct {
	Role FieldRole
}

// QuestionKind distinguishes screening question controls.
type QuestionKind string

const (
	KindRadio    QuestionKind = "radio"
	KindDropdown QuestionKind = "dropdown"
)

// Question is one unanswered screening question on the current page.
type Question struct {
	ID    string
	Kind  QuestionKind
	Label string
}

// Channel is the capability set of the external application channel. The
// channel supports exactly one active session; callers own the session
// lifecycle via StartSession/EndSession.
type Channel interface {
	StartSession(ctx context.Context) error
	EndSession(ctx context.Context) error

	Navigate(ctx context.Context, url string) error

	DetectApplyAction(ctx context.Context) (bool, error)
	InvokeApply(ctx context.Context) error

	DetectFormFields(ctx context.Context) ([]FormField, error)
	FillField(ctx context.Context, role FieldRole, value string) error

	DetectScreeningQuestions(ctx context.Context) ([]Question, error)
	Answer(ctx context.Context, question Question, choice string) error

	DetectSubmitAction(ctx context.Context) (bool, error)
	InvokeSubmit(ctx context.Context) error

	DetectConfirmation(ctx context.Context) (bool, error)

	DetectNextAction(ctx context.Context) (bool, error)
	InvokeNext(ctx context.Context) error
}
