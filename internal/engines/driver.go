// Package engines implements the DevTools-driven adapters that run
// prompts against chat engine UIs. Each adapter owns one browser tab and
// drives it over the CDP websocket.
package engines

import "fmt"

// Driver holds the DOM selectors for one engine's chat UI. Selector
// lists are tried in order; the combined selectors use CSS comma groups
// so a single querySelector covers every known variant.
type Driver struct {
	// PromptInput locates the prompt editor, most specific first.
	PromptInput []string
	// SubmitButton locates the send control.
	SubmitButton []string
	// ResponseContainer matches assistant response blocks.
	ResponseContainer string
	// StreamingIndicator matches while the answer is still generating.
	StreamingIndicator string
	// CitationLink matches cited source anchors inside a response.
	CitationLink string
}

// drivers maps engine name to its UI driver. Selector sets track the
// engines' production DOMs; when a UI ships a redesign, this table is
// what changes.
var drivers = map[string]Driver{
	"chatgpt": {
		PromptInput: []string{
			"#prompt-textarea",
			"div[contenteditable='true'][role='textbox']",
			"textarea[placeholder*='Message']",
			"textarea",
		},
		SubmitButton: []string{
			"[data-testid='send-button']",
			"button[aria-label='Send prompt']",
			"button[aria-label*='Send']",
			"button[type='submit']",
		},
		ResponseContainer:  "[data-message-author-role='assistant']",
		StreamingIndicator: "[data-state='streaming'], .result-streaming, [class*='result-streaming'], svg.animate-spin",
		CitationLink:       "a[href^='http']:not([href*='openai.com']):not([href*='chatgpt.com'])",
	},
	"gemini": {
		PromptInput: []string{
			"rich-textarea [contenteditable='true']",
			"rich-textarea",
			"[contenteditable='true'][role='textbox']",
			"textarea",
		},
		SubmitButton: []string{
			"button[aria-label*='Send']",
			"button[data-testid='send-button']",
			"button[type='submit']",
		},
		ResponseContainer:  "[id^='model-response-message-content'], div.markdown.markdown-main-panel, [class*='model-response']",
		StreamingIndicator: ".loading-state, [class*='pending'], [class*='streaming']",
		CitationLink:       "a.source-link, [class*='source-link'], a[href^='http']:not([href*='google.com'])",
	},
	"perplexity": {
		PromptInput: []string{
			"textarea[placeholder*='Ask']",
			"textarea[data-testid='search-input']",
			"div[contenteditable='true'][role='textbox']",
			"textarea",
		},
		SubmitButton: []string{
			"button[aria-label*='Submit']",
			"button[data-testid='submit-button']",
			"button[type='submit']",
		},
		ResponseContainer:  "div.prose, [class*='answer']",
		StreamingIndicator: "[class*='animate-pulse'], [class*='streaming']",
		CitationLink:       "span.citation a[href^='http'], a[data-pplx-citation], a[href^='http']:not([href*='perplexity.ai'])",
	},
	"grok": {
		PromptInput: []string{
			"div.tiptap.ProseMirror[contenteditable='true']",
			"div.ProseMirror[contenteditable='true']",
			"textarea",
		},
		SubmitButton: []string{
			"button[aria-label*='Submit']",
			"button[aria-label*='Send']",
			"button[type='submit']",
		},
		ResponseContainer:  "[class*='message-bubble'], [class*='response-content'], [class*='markdown']",
		StreamingIndicator: "[class*='streaming'], [class*='generating'], svg.animate-spin",
		CitationLink:       "a[href^='http']:not([href*='grok.com']):not([href*='x.ai'])",
	},
}

// DriverFor returns the UI driver for an engine.
func DriverFor(engine string) (Driver, error) {
	d, ok := drivers[engine]
	if !ok {
		return Driver{}, fmt.Errorf("no UI driver for engine %q", engine)
	}
	return d, nil
}

// Supported lists engines with a UI driver.
func Supported() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}
