// internal/locator/action/simulator.go
package action

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

// EventSimulator synthesizes the low level native event sequences of user
// input.
type EventSimulator interface {
	SimulateClick(ctx context.Context, doc *dom.Document, n *html.Node) error
	SimulateDoubleClick(ctx context.Context, doc *dom.Document, n *html.Node) error
	SimulateHover(ctx context.Context, doc *dom.Document, n *html.Node) error
	SimulateKeyPress(ctx context.Context, doc *dom.Document, n *html.Node, key string) error
	SimulateTyping(ctx context.Context, doc *dom.Document, n *html.Node, text string, delay time.Duration) error
}

// selectAllKey marks an editable whose whole content is selected, so the
// next edit replaces it.
const selectAllKey = "__scalpelSelectAll"

// NativeSimulator dispatches bubbling, cancelable DOM events directly on the
// document.
type NativeSimulator struct {
	logger *zap.Logger
}

func NewNativeSimulator(logger *zap.Logger) *NativeSimulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NativeSimulator{logger: logger.Named("simulator")}
}

func (s *NativeSimulator) SimulateClick(ctx context.Context, doc *dom.Document, n *html.Node) error {
	return s.click(ctx, doc, n, 1)
}

func (s *NativeSimulator) SimulateDoubleClick(ctx context.Context, doc *dom.Document, n *html.Node) error {
	if err := s.click(ctx, doc, n, 1); err != nil {
		return err
	}
	if err := s.click(ctx, doc, n, 2); err != nil {
		return err
	}
	ev := dom.NewEvent("dblclick")
	ev.Detail = 2
	_, err := doc.Dispatch(n, ev)
	return err
}

func (s *NativeSimulator) click(ctx context.Context, doc *dom.Document, n *html.Node, detail int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	down := dom.NewEvent("mousedown")
	down.Detail = detail
	proceed, err := doc.Dispatch(n, down)
	if err != nil {
		return err
	}
	if proceed && focusable(n) {
		if err := doc.Focus(n); err != nil {
			return err
		}
	}
	up := dom.NewEvent("mouseup")
	up.Detail = detail
	if _, err := doc.Dispatch(n, up); err != nil {
		return err
	}
	click := dom.NewEvent("click")
	click.Detail = detail
	_, err = doc.Dispatch(n, click)
	return err
}

func (s *NativeSimulator) SimulateHover(ctx context.Context, doc *dom.Document, n *html.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := doc.Dispatch(n, dom.NewEvent("mouseover")); err != nil {
		return err
	}
	// mouseenter does not bubble.
	if _, err := doc.Dispatch(n, &dom.Event{Type: "mouseenter"}); err != nil {
		return err
	}
	_, err := doc.Dispatch(n, dom.NewEvent("mousemove"))
	return err
}

// SimulateKeyPress sends keydown, keypress for printable keys, the default
// editing action and keyup to n.
func (s *NativeSimulator) SimulateKeyPress(ctx context.Context, doc *dom.Document, n *html.Node, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stroke, err := ParseKey(key)
	if err != nil {
		return err
	}
	proceed, err := doc.Dispatch(n, s.keyEvent("keydown", stroke))
	if err != nil {
		return err
	}
	if proceed && stroke.Printable() {
		proceed, err = doc.Dispatch(n, s.keyEvent("keypress", stroke))
		if err != nil {
			return err
		}
	}
	if proceed {
		if err := s.defaultAction(doc, n, stroke); err != nil {
			return err
		}
	}
	_, err = doc.Dispatch(n, s.keyEvent("keyup", stroke))
	return err
}

// SimulateTyping presses each character of text in turn, pacing the strokes
// by delay.
func (s *NativeSimulator) SimulateTyping(ctx context.Context, doc *dom.Document, n *html.Node, text string, delay time.Duration) error {
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	for _, r := range text {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		key := string(r)
		switch r {
		case '\n', '\r':
			key = "Enter"
		case '\t':
			key = "Tab"
		}
		if err := s.SimulateKeyPress(ctx, doc, n, key); err != nil {
			return err
		}
	}
	s.logger.Debug("Typed text", zap.Int("runes", len([]rune(text))), zap.String("element", dom.Describe(n)))
	return nil
}

func (s *NativeSimulator) keyEvent(typ string, k KeyStroke) *dom.Event {
	ev := dom.NewEvent(typ)
	ev.Key = k.Key
	ev.Code = k.Code
	ev.KeyCode = k.KeyCode
	ev.Modifiers = k.Modifiers
	return ev
}

// defaultAction applies the editing effect of a key on text inputs,
// textareas and contenteditable elements.
func (s *NativeSimulator) defaultAction(doc *dom.Document, n *html.Node, k KeyStroke) error {
	if !dom.IsTextInput(n) || dom.IsDisabled(n) {
		return nil
	}
	selected := false
	if v, ok := doc.Property(n, selectAllKey); ok {
		selected, _ = v.(bool)
	}
	doc.SetProperty(n, selectAllKey, false)

	mods := k.Modifiers &^ input.ModifierShift
	current := editableText(doc, n)
	var next, data string
	switch {
	case strings.EqualFold(k.Key, "a") && (mods == input.ModifierCtrl || mods == input.ModifierMeta):
		doc.SetProperty(n, selectAllKey, true)
		return nil
	case k.Key == "Backspace" || k.Key == "Delete":
		switch {
		case selected:
			next = ""
		case k.Key == "Backspace" && current != "":
			runes := []rune(current)
			next = string(runes[:len(runes)-1])
		default:
			return nil
		}
	case k.Key == "Enter" && dom.TagName(n) != "input":
		data = "\n"
	case k.Printable():
		data = k.Text
	default:
		return nil
	}
	if data != "" {
		if selected {
			next = data
		} else {
			next = current + data
		}
	}
	setEditableText(doc, n, next)
	ev := dom.NewEvent("input")
	ev.Data = data
	_, err := doc.Dispatch(n, ev)
	return err
}

func editableText(doc *dom.Document, n *html.Node) string {
	switch dom.TagName(n) {
	case "input", "textarea", "select":
		return doc.Value(n)
	}
	var text string
	doc.View(func(*html.Node) { text = dom.TextContent(n) })
	return text
}

func setEditableText(doc *dom.Document, n *html.Node, text string) {
	switch dom.TagName(n) {
	case "input", "textarea", "select":
		doc.SetValue(n, text)
	default:
		doc.SetTextContent(n, text)
	}
}

func focusable(n *html.Node) bool {
	switch dom.TagName(n) {
	case "input", "textarea", "select", "button":
		return !dom.IsDisabled(n)
	case "a":
		return dom.HasAttr(n, "href")
	}
	return dom.HasAttr(n, "tabindex") || dom.IsContentEditable(n)
}
