// File: internal/browser/backend.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	markerSelector = `[data-webpilot-target]`
	maxFindResults = 30
	maxExtractLen  = 20000
	excerptLen     = 600

	defaultNavigationTimeout = 30 * time.Second
	defaultReadyTimeout      = 8 * time.Second
	defaultActionTimeout     = 10 * time.Second
	defaultIdleWait          = 1200 * time.Millisecond
)

const readyStateExpr = `document.readyState === 'complete' || document.readyState === 'interactive'`

// Backend drives one browser tab and implements schemas.PageBackend and
// schemas.SnapshotProvider. Execute never returns a Go error; failures are
// reported through the observation so the agent loop can reason about them.
type Backend struct {
	logger     *zap.Logger
	cfg        config.BrowserConfig
	browserCtx context.Context

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// Close releases the tab. The browser itself is owned by the Manager.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabCancel != nil {
		b.tabCancel()
	}
}

// Execute dispatches one action against the live page.
func (b *Backend) Execute(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	b.logger.Debug("Executing action", zap.String("action", action.String()))

	switch action.Type {
	case schemas.ActionNavigate:
		return b.navigate(ctx, action)
	case schemas.ActionFindElements:
		return b.findElements(ctx, action)
	case schemas.ActionClick:
		return b.click(ctx, action)
	case schemas.ActionTypeText:
		return b.typeText(ctx, action)
	case schemas.ActionSelect:
		return b.selectOption(ctx, action)
	case schemas.ActionScroll:
		return b.scroll(ctx, action)
	case schemas.ActionWaitFor:
		return b.waitFor(ctx, action)
	case schemas.ActionExtract:
		text, err := b.Extract(ctx, action.Value, extractSelector(action.Locator))
		if err != nil {
			return schemas.Failure(err.Error())
		}
		return schemas.Success(schemas.Args{
			"text":   schemas.StringValue(text),
			"length": schemas.IntValue(len(text)),
		})
	case schemas.ActionSwitchTab:
		return b.switchTab(ctx, action)
	case schemas.ActionAskUser:
		return schemas.Failure("askUser is resolved by the caller, not the page")
	default:
		return schemas.Failure(fmt.Sprintf("unsupported action type %q", action.Type))
	}
}

// run executes chromedp actions on the tab with a timeout, honoring the
// caller's cancellation.
func (b *Backend) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	tab := b.tabCtx
	b.mu.Unlock()
	if tab == nil {
		return fmt.Errorf("no tab attached")
	}

	runCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (b *Backend) navigate(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	if action.URL == "" {
		return schemas.Failure("navigate requires a url")
	}
	if action.NewTab {
		b.openTab()
	}

	err := b.run(ctx, b.navigationTimeout(),
		chromedp.Navigate(action.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return schemas.Failure(fmt.Sprintf("navigation to %s failed: %v", action.URL, err))
	}
	return schemas.Success(schemas.Args{"url": schemas.StringValue(action.URL)})
}

func (b *Backend) findElements(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	expr := fmt.Sprintf(findElementsJS, locatorJSON(action.Locator), maxFindResults)
	var elements []schemas.ElementSummary
	if err := b.run(ctx, b.readyTimeout(), chromedp.Evaluate(expr, &elements)); err != nil {
		return schemas.Failure(fmt.Sprintf("element query failed: %v", err))
	}
	return schemas.Success(elementsArgs(elements))
}

func (b *Backend) click(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	sel, by, fail := b.resolveTarget(ctx, action.Locator)
	if fail != nil {
		return *fail
	}
	if err := b.run(ctx, defaultActionTimeout, chromedp.Click(sel, by)); err != nil {
		return schemas.Failure(fmt.Sprintf("click failed: %v", err))
	}
	return schemas.Success(nil)
}

func (b *Backend) typeText(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	sel, by, fail := b.resolveTarget(ctx, action.Locator)
	if fail != nil {
		return *fail
	}

	tasks := chromedp.Tasks{
		chromedp.Focus(sel, by),
		chromedp.SendKeys(sel, action.Text, by),
	}
	if action.Submit {
		tasks = append(tasks, chromedp.SendKeys(sel, kb.Enter, by))
	}
	if err := b.run(ctx, defaultActionTimeout, tasks); err != nil {
		return schemas.Failure(fmt.Sprintf("typing failed: %v", err))
	}
	return schemas.Success(schemas.Args{"submitted": schemas.BoolValue(action.Submit)})
}

func (b *Backend) selectOption(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	if action.Locator != nil && action.Locator.XPath != "" {
		if err := b.run(ctx, defaultActionTimeout, chromedp.SetValue(action.Locator.XPath, action.Value, chromedp.BySearch)); err != nil {
			return schemas.Failure(fmt.Sprintf("select failed: %v", err))
		}
		return schemas.Success(nil)
	}

	_, _, fail := b.resolveTarget(ctx, action.Locator)
	if fail != nil {
		return *fail
	}
	expr := fmt.Sprintf(selectValueJS, quoteJS(action.Value))
	var ok bool
	if err := b.run(ctx, defaultActionTimeout, chromedp.Evaluate(expr, &ok)); err != nil {
		return schemas.Failure(fmt.Sprintf("select failed: %v", err))
	}
	if !ok {
		return schemas.Failure("select target disappeared")
	}
	return schemas.Success(nil)
}

func (b *Backend) scroll(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	amount := action.AmountPx
	if amount <= 0 {
		amount = 600
	}
	if strings.EqualFold(action.Direction, "up") {
		amount = -amount
	}
	expr := fmt.Sprintf(scrollJS, amount)
	if err := b.run(ctx, defaultActionTimeout, chromedp.Evaluate(expr, nil)); err != nil {
		return schemas.Failure(fmt.Sprintf("scroll failed: %v", err))
	}
	return schemas.Success(schemas.Args{"scrolledPx": schemas.IntValue(amount)})
}

func (b *Backend) waitFor(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	timeout := msOr(action.TimeoutMs, b.readyTimeout())

	switch {
	case action.Locator != nil && !action.Locator.IsZero():
		expr := fmt.Sprintf(countMatchesJS, locatorJSON(action.Locator))
		var found bool
		err := b.run(ctx, timeout+time.Second,
			chromedp.Poll(expr, &found, chromedp.WithPollingTimeout(timeout)))
		if err != nil || !found {
			return schemas.Failure("timed out waiting for a matching element")
		}
		return schemas.Success(nil)

	case action.Value == "idle":
		idle := msOr(action.TimeoutMs, b.idleWait())
		if err := b.run(ctx, idle+time.Second, chromedp.Sleep(idle)); err != nil {
			return schemas.Failure(fmt.Sprintf("idle wait interrupted: %v", err))
		}
		return schemas.Success(nil)

	default: // "ready" and anything unrecognized degrade to a readiness wait.
		var ready bool
		err := b.run(ctx, timeout+time.Second,
			chromedp.Poll(readyStateExpr, &ready, chromedp.WithPollingTimeout(timeout)))
		if err != nil {
			return schemas.Failure(fmt.Sprintf("page did not become ready: %v", err))
		}
		return schemas.Success(nil)
	}
}

func (b *Backend) switchTab(ctx context.Context, action schemas.Action) schemas.ToolObservation {
	b.mu.Lock()
	tab := b.tabCtx
	b.mu.Unlock()

	infos, err := chromedp.Targets(tab)
	if err != nil {
		return schemas.Failure(fmt.Sprintf("could not list tabs: %v", err))
	}

	current := chromedp.FromContext(tab)
	hint := strings.ToLower(action.Value)
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if current != nil && current.Target != nil && info.TargetID == current.Target.TargetID {
			continue
		}
		if hint != "" && !strings.Contains(strings.ToLower(info.Title+" "+info.URL), hint) {
			continue
		}

		newCtx, newCancel := chromedp.NewContext(b.browserCtx, chromedp.WithTargetID(info.TargetID))
		b.autoDismissDialogs(newCtx)
		b.mu.Lock()
		b.tabCtx, b.tabCancel = newCtx, newCancel
		b.mu.Unlock()
		b.logger.Info("Switched tab", zap.String("title", info.Title), zap.String("url", info.URL))
		return schemas.Success(schemas.Args{
			"url":   schemas.StringValue(info.URL),
			"title": schemas.StringValue(info.Title),
		})
	}
	return schemas.Failure("no other tab matches")
}

// openTab attaches a fresh tab and makes it current. The previous tab stays
// open and reachable through switchTab.
func (b *Backend) openTab() {
	newCtx, newCancel := chromedp.NewContext(b.browserCtx)
	b.autoDismissDialogs(newCtx)
	b.mu.Lock()
	b.tabCtx, b.tabCancel = newCtx, newCancel
	b.mu.Unlock()
}

// autoDismissDialogs accepts alert/confirm/prompt dialogs as they appear.
// An unanswered dialog freezes every subsequent CDP command on the tab.
func (b *Backend) autoDismissDialogs(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		dialog, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		b.logger.Info("Auto-accepting JavaScript dialog",
			zap.String("type", string(dialog.Type)),
			zap.String("message", dialog.Message))
		go func() {
			action := page.HandleJavaScriptDialog(true)
			if err := chromedp.Run(tabCtx, action); err != nil {
				b.logger.Warn("Failed to dismiss dialog", zap.Error(err))
			}
		}()
	})
}

// resolveTarget marks the element a locator points at and returns the
// selector addressing it. XPath locators bypass the marker and are queried
// directly.
func (b *Backend) resolveTarget(ctx context.Context, loc *schemas.Locator) (string, chromedp.QueryOption, *schemas.ToolObservation) {
	if loc.IsZero() {
		fail := schemas.Failure("this action requires a locator")
		return "", nil, &fail
	}
	if loc.XPath != "" {
		return loc.XPath, chromedp.BySearch, nil
	}

	expr := fmt.Sprintf(markTargetJS, locatorJSON(loc))
	var found bool
	if err := b.run(ctx, b.readyTimeout(), chromedp.Evaluate(expr, &found)); err != nil {
		fail := schemas.Failure(fmt.Sprintf("locator resolution failed: %v", err))
		return "", nil, &fail
	}
	if !found {
		fail := schemas.Failure("no visible element matches " + locatorJSON(loc))
		return "", nil, &fail
	}
	return markerSelector, chromedp.ByQuery, nil
}

// FocusedElement implements schemas.PageBackend.
func (b *Backend) FocusedElement(ctx context.Context) *schemas.FocusSummary {
	var fs *schemas.FocusSummary
	if err := b.run(ctx, 2*time.Second, chromedp.Evaluate(focusedElementJS, &fs)); err != nil {
		return nil
	}
	return fs
}

// Extract implements schemas.PageBackend. Mode "article" prefers semantic
// content containers, "full" takes the body; a selector overrides both.
func (b *Backend) Extract(ctx context.Context, mode, selector string) (string, error) {
	expr := fmt.Sprintf(extractTextJS,
		quoteJS(selector), maxExtractLen,
		mode != "full", maxExtractLen, maxExtractLen)

	var text string
	if err := b.run(ctx, b.readyTimeout(), chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

// CurrentContext implements schemas.SnapshotProvider.
func (b *Backend) CurrentContext(ctx context.Context) *schemas.PageContext {
	var url, title, excerpt string
	err := b.run(ctx, 3*time.Second,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(fmt.Sprintf(pageExcerptJS, excerptLen), &excerpt),
	)
	if err != nil {
		b.logger.Debug("Page snapshot unavailable", zap.Error(err))
		return nil
	}
	return &schemas.PageContext{URL: url, Title: title, TextExcerpt: excerpt}
}

func (b *Backend) navigationTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (b *Backend) readyTimeout() time.Duration {
	if b.cfg.ReadyTimeout > 0 {
		return b.cfg.ReadyTimeout
	}
	return defaultReadyTimeout
}

func (b *Backend) idleWait() time.Duration {
	if b.cfg.IdleWait > 0 {
		return b.cfg.IdleWait
	}
	return defaultIdleWait
}

// -- helpers --

// locatorJSON renders the locator as the JSON literal the page-side snippets
// consume. A nil locator becomes an unconstrained match.
func locatorJSON(loc *schemas.Locator) string {
	if loc == nil {
		return "{}"
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func quoteJS(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func elementsArgs(elements []schemas.ElementSummary) schemas.Args {
	values := make([]schemas.Value, 0, len(elements))
	for _, el := range elements {
		values = append(values, schemas.ObjectValue(map[string]schemas.Value{
			"i":    schemas.IntValue(el.Index),
			"role": schemas.StringValue(el.Role),
			"name": schemas.StringValue(el.Name),
			"text": schemas.StringValue(el.Text),
		}))
	}
	return schemas.Args{
		"count":    schemas.IntValue(len(elements)),
		"elements": schemas.ArrayValue(values...),
	}
}

func extractSelector(loc *schemas.Locator) string {
	if loc == nil {
		return ""
	}
	return loc.CSS
}

func msOr(ms int, def time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
