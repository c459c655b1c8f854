package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/citation"
	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/pacing"
)

const (
	// pollInterval is how often the adapter checks whether the answer
	// finished streaming.
	pollInterval = 2 * time.Second

	// stablePolls is how many consecutive polls with unchanged text
	// declare the answer complete. Engines briefly pause mid-answer;
	// one quiet poll is not enough.
	stablePolls = 3

	// typeChunkSize is how many characters go into the editor per
	// simulated typing burst.
	typeChunkSize = 24

	// baseTypeDelay is the pre-profile delay between typing bursts.
	baseTypeDelay = 150 * time.Millisecond
)

// ErrNoResponse means the engine never produced an answer before the job
// deadline.
var ErrNoResponse = errors.New("engine produced no response")

// Adapter drives one engine tab over DevTools. It implements
// worker.Adapter and is owned by exactly one execution unit.
type Adapter struct {
	engine    string
	engineURL string
	cdpURL    string
	driver    Driver
	logger    logger.Interface

	session *cdpSession
	profile pacing.SessionProfile
}

// NewAdapter creates the adapter for an engine.
func NewAdapter(engine, engineURL, cdpURL string, log logger.Interface) (*Adapter, error) {
	driver, err := DriverFor(engine)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		engine:    engine,
		engineURL: engineURL,
		cdpURL:    cdpURL,
		driver:    driver,
		logger:    log.WithComponent("adapter").WithEngine(engine),
	}, nil
}

// OpenSession attaches to the engine's tab, creating one when missing.
func (a *Adapter) OpenSession(ctx context.Context, profile pacing.SessionProfile) error {
	wsURL, err := findOrCreateTab(ctx, a.cdpURL, a.engineURL)
	if err != nil {
		return fmt.Errorf("locate %s tab: %w", a.engine, err)
	}

	session, err := dialSession(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("attach to %s tab: %w", a.engine, err)
	}

	a.session = session
	a.profile = profile
	a.logger.Info("session opened", "session_id", profile.SessionID)
	return nil
}

// CloseSession detaches from the tab. The tab itself stays open; the
// operator's logged-in browser is not ours to tear down.
func (a *Adapter) CloseSession(context.Context) error {
	if a.session == nil {
		return nil
	}
	err := a.session.close()
	a.session = nil
	return err
}

// RunPrompt types the prompt, submits it, and waits for the answer to
// finish streaming. The caller's context carries the job deadline.
func (a *Adapter) RunPrompt(ctx context.Context, job domain.Job) (domain.Response, error) {
	if a.session == nil {
		return domain.Response{}, errors.New("no open session")
	}
	started := time.Now()

	if err := a.typePrompt(ctx, job.PromptText); err != nil {
		return domain.Response{}, fmt.Errorf("type prompt: %w", err)
	}
	if err := a.submit(ctx); err != nil {
		return domain.Response{}, fmt.Errorf("submit prompt: %w", err)
	}

	text, html, err := a.awaitResponse(ctx)
	if err != nil {
		return domain.Response{}, err
	}

	sources := a.collectSources(ctx)

	// Simulated reading keeps the interaction tempo consistent with the
	// session's profile.
	if pause := a.profile.ReadingTime(len(text)); pause > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(pause):
		}
	}

	return domain.Response{
		Success:       true,
		Text:          text,
		HTML:          html,
		Sources:       sources,
		CitationCount: len(sources),
		Elapsed:       time.Since(started),
	}, nil
}

// typePrompt inserts the prompt into the editor in small bursts with
// profile-scaled pauses, closer to a person than one 400-char paste.
func (a *Adapter) typePrompt(ctx context.Context, prompt string) error {
	selectors := jsArray(a.driver.PromptInput)

	focus := fmt.Sprintf(`(() => {
		const el = %s.map(s => document.querySelector(s)).find(Boolean);
		if (!el) return false;
		el.focus();
		return true;
	})()`, selectors)

	var focused bool
	if err := a.session.eval(ctx, focus, &focused); err != nil {
		return err
	}
	if !focused {
		return errors.New("prompt editor not found")
	}

	runes := []rune(prompt)
	for start := 0; start < len(runes); start += typeChunkSize {
		end := start + typeChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])

		insert := fmt.Sprintf(`(() => {
			const el = document.activeElement;
			if (el && (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT')) {
				el.value += %s;
				el.dispatchEvent(new Event('input', { bubbles: true }));
			} else {
				document.execCommand('insertText', false, %s);
			}
			return true;
		})()`, jsString(chunk), jsString(chunk))

		if err := a.session.eval(ctx, insert, nil); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.profile.TypingDelay(baseTypeDelay)):
		}
	}
	return nil
}

// submit clicks the send control, falling back to an Enter keypress when
// no button matches.
func (a *Adapter) submit(ctx context.Context) error {
	click := fmt.Sprintf(`(() => {
		const btn = %s.map(s => document.querySelector(s)).find(b => b && !b.disabled);
		if (!btn) return false;
		btn.click();
		return true;
	})()`, jsArray(a.driver.SubmitButton))

	var clicked bool
	if err := a.session.eval(ctx, click, &clicked); err != nil {
		return err
	}
	if clicked {
		return nil
	}

	a.logger.Debug("send button not found, submitting with Enter")
	for _, eventType := range []string{"keyDown", "keyUp"} {
		_, err := a.session.call(ctx, "Input.dispatchKeyEvent", map[string]any{
			"type":                  eventType,
			"key":                   "Enter",
			"code":                  "Enter",
			"windowsVirtualKeyCode": 13,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// awaitResponse polls until the last assistant block stops streaming and
// its text is stable.
func (a *Adapter) awaitResponse(ctx context.Context) (text, html string, err error) {
	probe := fmt.Sprintf(`(() => {
		const blocks = document.querySelectorAll(%s);
		const last = blocks[blocks.length - 1];
		return {
			streaming: !!document.querySelector(%s),
			text: last ? last.innerText : '',
			html: last ? last.innerHTML : '',
		};
	})()`, jsString(a.driver.ResponseContainer), jsString(a.driver.StreamingIndicator))

	var lastText string
	stable := 0
	for {
		select {
		case <-ctx.Done():
			if lastText != "" {
				// Deadline hit mid-answer: return what streamed so far.
				return lastText, html, nil
			}
			return "", "", fmt.Errorf("%w: %v", ErrNoResponse, ctx.Err())
		case <-time.After(pollInterval):
		}

		var state struct {
			Streaming bool   `json:"streaming"`
			Text      string `json:"text"`
			HTML      string `json:"html"`
		}
		if err := a.session.eval(ctx, probe, &state); err != nil {
			return "", "", fmt.Errorf("poll response: %w", err)
		}

		if state.Streaming || strings.TrimSpace(state.Text) == "" {
			stable = 0
			lastText, html = state.Text, state.HTML
			continue
		}

		if state.Text == lastText {
			stable++
			if stable >= stablePolls {
				return state.Text, state.HTML, nil
			}
		} else {
			stable = 0
		}
		lastText, html = state.Text, state.HTML
	}
}

// collectSources reads the cited source anchors from the response area.
// Best effort: a failure here degrades to text-derived citations, which
// the execution unit extracts anyway.
func (a *Adapter) collectSources(ctx context.Context) []domain.Source {
	script := fmt.Sprintf(`(() =>
		Array.from(document.querySelectorAll(%s)).map(a => ({
			url: a.href,
			title: (a.innerText || a.title || '').trim(),
		}))
	)()`, jsString(a.driver.CitationLink))

	var raw []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := a.session.eval(ctx, script, &raw); err != nil {
		a.logger.Debug("source collection failed", "error", err)
		return nil
	}

	sources := make([]domain.Source, 0, len(raw))
	for _, r := range raw {
		if r.URL == "" {
			continue
		}
		sources = append(sources, domain.Source{
			URL:    r.URL,
			Title:  r.Title,
			Domain: citation.NormalizeDomain(hostOf(r.URL)),
		})
	}
	return sources
}

// jsString encodes a Go string as a JS string literal.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// jsArray encodes a string slice as a JS array literal.
func jsArray(items []string) string {
	data, _ := json.Marshal(items)
	return string(data)
}
