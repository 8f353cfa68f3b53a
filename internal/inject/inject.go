// Package inject delivers transcripts into the focused application
// using robotgo, either by simulated keystrokes or a clipboard paste.
package inject

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// Injector types or pastes text into the active application.
type Injector struct {
	method   string // "type" or "paste"
	modifier string // paste chord modifier: "ctrl" or "cmd"
}

// NewInjector creates an Injector. method is "type" (keystroke
// simulation) or "paste" (clipboard); modifier selects the paste chord,
// ctrl+v on Linux and Windows, cmd+v on macOS.
func NewInjector(method, modifier string) *Injector {
	if modifier == "" {
		modifier = "ctrl"
	}
	return &Injector{method: method, modifier: modifier}
}

// Inject sends text to the active application using the configured
// method. Empty text is a no-op.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case "paste":
		return inj.paste(text)
	default: // "type"
		return inj.typeText(text)
	}
}

// typeText simulates individual keystrokes. Preserves clipboard
// contents but is slower for long text.
func (inj *Injector) typeText(text string) error {
	robotgo.Type(text)
	return nil
}

// paste goes through the clipboard. Faster for long text; the previous
// clipboard contents are restored best-effort afterwards.
func (inj *Injector) paste(text string) error {
	prev, _ := robotgo.ReadAll()

	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}
	if err := robotgo.KeyTap("v", inj.modifier); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", inj.modifier, err)
	}

	_ = robotgo.WriteAll(prev)
	return nil
}
