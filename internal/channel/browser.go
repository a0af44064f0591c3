package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Selector sets probed on the live page, in priority order.
var (
	coverLetterSelectors = []string{
		`textarea[name*="cover"]`,
		`textarea[id*="cover"]`,
		`textarea[placeholder*="cover"]`,
	}
	messageSelectors = []string{
		`textarea[name*="message"]`,
		`textarea[id*="message"]`,
		`textarea[placeholder*="message"]`,
	}
	applySelector        = `button[class*="apply"], a[class*="apply"], button[aria-label*="Apply"]`
	submitSelector       = `button[class*="submit"]:not([disabled]), button[aria-label*="Submit"]:not([disabled]), input[type="submit"]:not([disabled])`
	confirmationSelector = `[class*="confirmation"], [class*="post-apply"], [class*="application-sent"]`
	nextSelector         = `button[class*="next"]:not([disabled]), button[aria-label*="Next"]:not([disabled]), button[aria-label*="Continue"]:not([disabled])`
)

// Browser drives the application channel with a headless browser.
type Browser struct {
	logger   *zap.Logger
	headless bool
	timeout  time.Duration

	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	browserCtx  context.Context
}

type BrowserConfig struct {
	Headless bool
	// Timeout bounds every single channel operation.
	Timeout time.Duration
}

func NewBrowser(cfg BrowserConfig, logger *zap.Logger) *Browser {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Browser{
		logger:   logger,
		headless: cfg.Headless,
		timeout:  timeout,
	}
}

// StartSession launches the browser. Only one session may be active.
func (b *Browser) StartSession(ctx context.Context) error {
	if b.browserCtx != nil {
		return errors.New("session already active")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1920, 1080),
		)...,
	)

	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)

	// Materialize the browser process now so a broken environment fails
	// the session start, not the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		ctxCancel()
		allocCancel()
		return fmt.Errorf("start browser session: %w", err)
	}

	b.allocCancel = allocCancel
	b.ctxCancel = ctxCancel
	b.browserCtx = browserCtx

	b.logger.Debug("browser session started", zap.Bool("headless", b.headless))
	return nil
}

func (b *Browser) EndSession(context.Context) error {
	if b.browserCtx == nil {
		return nil
	}

	b.ctxCancel()
	b.allocCancel()
	b.browserCtx = nil
	b.ctxCancel = nil
	b.allocCancel = nil

	b.logger.Debug("browser session ended")
	return nil
}

func (b *Browser) Navigate(_ context.Context, url string) error {
	return b.run("navigate",
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
	)
}

func (b *Browser) DetectApplyAction(ctx context.Context) (bool, error) {
	return b.exists(applySelector)
}

func (b *Browser) InvokeApply(context.Context) error {
	return b.run("invoke apply",
		chromedp.Click(applySelector, chromedp.NodeVisible),
		chromedp.Sleep(time.Second),
	)
}

func (b *Browser) DetectFormFields(context.Context) ([]FormField, error) {
	var fields []FormField

	for role, selectors := range map[FieldRole][]string{
		RoleCoverLetter: coverLetterSelectors,
		RoleMessage:     messageSelectors,
	} {
		found, err := b.exists(strings.Join(selectors, ", "))
		if err != nil {
			return nil, err
		}
		if found {
			fields = append(fields, FormField{Role: role})
		}
	}

	return fields, nil
}

func (b *Browser) FillField(_ context.Context, role FieldRole, value string) error {
	selectors := messageSelectors
	if role == RoleCoverLetter {
		selectors = coverLetterSelectors
	}

	var lastErr error
	for _, selector := range selectors {
		err := b.run("fill field",
			chromedp.SendKeys(selector, value, chromedp.NodeVisible),
		)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("fill %s field: %w", role, lastErr)
}

// pageQuestion mirrors the object shape produced by the probe script.
type pageQuestion struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

const questionsScript = `(() => {
	const out = [];
	for (const radio of document.querySelectorAll('input[type="radio"]:not(:checked)')) {
		const label = radio.id ? document.querySelector('label[for="' + radio.id + '"]') : null;
		out.push({id: radio.id, kind: "radio", label: label ? label.textContent.trim() : ""});
	}
	for (const select of document.querySelectorAll('select')) {
		if (select.selectedIndex <= 0) {
			out.push({id: select.id, kind: "dropdown", label: ""});
		}
	}
	return out;
})()`

func (b *Browser) DetectScreeningQuestions(context.Context) ([]Question, error) {
	var raw []pageQuestion
	if err := b.run("detect questions", chromedp.Evaluate(questionsScript, &raw)); err != nil {
		return nil, err
	}

	questions := make([]Question, 0, len(raw))
	for _, q := range raw {
		questions = append(questions, Question{
			ID:    q.ID,
			Kind:  QuestionKind(q.Kind),
			Label: q.Label,
		})
	}

	return questions, nil
}

func (b *Browser) Answer(_ context.Context, question Question, choice string) error {
	switch question.Kind {
	case KindRadio:
		return b.run("answer radio",
			chromedp.Click(fmt.Sprintf(`input[type="radio"]#%s`, question.ID), chromedp.NodeVisible),
		)
	case KindDropdown:
		selector := `select`
		if question.ID != "" {
			selector = fmt.Sprintf(`select#%s`, question.ID)
		}
		script := fmt.Sprintf(`(() => {
			const select = document.querySelector(%q);
			if (!select) return false;
			for (let i = 1; i < select.options.length; i++) {
				if (select.options[i].text.trim() !== "") {
					select.selectedIndex = i;
					select.dispatchEvent(new Event("change", {bubbles: true}));
					return true;
				}
			}
			return false;
		})()`, selector)

		var answered bool
		if err := b.run("answer dropdown", chromedp.Evaluate(script, &answered)); err != nil {
			return err
		}
		if !answered {
			return fmt.Errorf("dropdown %q has no selectable option", question.ID)
		}
		return nil
	default:
		return fmt.Errorf("unsupported question kind %q", question.Kind)
	}
}

func (b *Browser) DetectSubmitAction(context.Context) (bool, error) {
	return b.exists(submitSelector)
}

func (b *Browser) InvokeSubmit(context.Context) error {
	return b.run("invoke submit",
		chromedp.Click(submitSelector, chromedp.NodeVisible),
		chromedp.Sleep(2*time.Second),
	)
}

func (b *Browser) DetectConfirmation(context.Context) (bool, error) {
	return b.exists(confirmationSelector)
}

func (b *Browser) DetectNextAction(context.Context) (bool, error) {
	return b.exists(nextSelector)
}

func (b *Browser) InvokeNext(context.Context) error {
	return b.run("invoke next",
		chromedp.Click(nextSelector, chromedp.NodeVisible),
		chromedp.Sleep(time.Second),
	)
}

func (b *Browser) exists(selector string) (bool, error) {
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)

	var found bool
	if err := b.run("probe", chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}

	return found, nil
}

func (b *Browser) run(step string, actions ...chromedp.Action) error {
	if b.browserCtx == nil {
		return errors.New("no active session")
	}

	ctx, cancel := context.WithTimeout(b.browserCtx, b.timeout)
	defer cancel()

	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}

	return nil
}
