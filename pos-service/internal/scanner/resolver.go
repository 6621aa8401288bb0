// Package scanner turns POS keystrokes into cart intents. A barcode scanner
// types fast and ends with Enter, so the resolver starts composing a code as
// soon as a printable key arrives while no field has focus, without stealing
// keys meant for other open inputs.
package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fjod/go_pos/pos-service/internal/domain"
)

type State int

const (
	Idle State = iota
	Composing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Composing:
		return "composing"
	default:
		return "unknown"
	}
}

// Focus tells where keyboard focus was when the key was pressed.
type Focus string

const (
	FocusNone   Focus = "none"
	FocusSearch Focus = "search"
	FocusOther  Focus = "other" // any other text input, e.g. an open dialog
)

const (
	KeyEnter     = "Enter"
	KeyDelete    = "Delete"
	KeyBackspace = "Backspace"
)

type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
	Focus Focus  `json:"focus"`
}

type IntentKind string

const (
	IntentNone       IntentKind = ""
	IntentCode       IntentKind = "code"
	IntentUnresolved IntentKind = "unresolved"
	IntentDeleteLine IntentKind = "delete_line"
	IntentFinalize   IntentKind = "finalize"
)

type Intent struct {
	Kind      IntentKind `json:"kind,omitempty"`
	Code      string     `json:"code,omitempty"`
	ProductID int64      `json:"product_id,omitempty"`
}

// Outcome describes what the resolver did with a key.
type Outcome struct {
	Intent      Intent `json:"intent"`
	Intercepted bool   `json:"intercepted"`  // the key must not reach the native field
	FocusSearch bool   `json:"focus_search"` // move focus into the search field
}

// Lookup resolves a code against the session catalog.
type Lookup interface {
	Lookup(code string) (domain.Product, bool)
}

type Resolver struct {
	lookup   Lookup
	state    State
	buffer   []rune
	disabled bool
	editing  bool
}

func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

func (r *Resolver) State() State { return r.state }

func (r *Resolver) Buffer() string { return string(r.buffer) }

func (r *Resolver) Disabled() bool { return r.disabled }

func (r *Resolver) Editing() bool { return r.editing }

// SetDisabled turns keyboard interception off, leaving native field behavior.
func (r *Resolver) SetDisabled(v bool) { r.disabled = v }

// SetEditing records whether some input is mid-edit. It is the only place
// that flag is kept.
func (r *Resolver) SetEditing(v bool) { r.editing = v }

// Blur handles the search field losing focus. The buffer stays in the field
// for manual editing.
func (r *Resolver) Blur() {
	r.state = Idle
}

func (r *Resolver) HandleKey(ev KeyEvent) Outcome {
	if r.disabled {
		return Outcome{}
	}

	switch ev.Key {
	case KeyEnter:
		return r.enter(ev)
	case KeyDelete:
		if r.midEdit(ev) {
			return Outcome{}
		}
		return Outcome{Intent: Intent{Kind: IntentDeleteLine}, Intercepted: true}
	case KeyBackspace:
		return r.backspace(ev)
	}

	if !printable(ev) {
		return Outcome{}
	}

	if r.state == Composing && ev.Focus != FocusOther {
		r.buffer = append(r.buffer, []rune(ev.Key)...)
		return Outcome{Intercepted: ev.Focus == FocusNone}
	}

	switch ev.Focus {
	case FocusSearch:
		// manual typing in the search field composes too
		r.state = Composing
		r.buffer = append(r.buffer, []rune(ev.Key)...)
		return Outcome{}
	case FocusNone:
		if r.editing {
			return Outcome{}
		}
		r.state = Composing
		r.buffer = []rune(ev.Key)
		return Outcome{Intercepted: true, FocusSearch: true}
	}
	return Outcome{}
}

func (r *Resolver) enter(ev KeyEvent) Outcome {
	if r.state == Composing && ev.Focus != FocusOther {
		return Outcome{Intent: r.resolve(), Intercepted: true}
	}
	// a code kept after blur is submitted from the search field
	if ev.Focus == FocusSearch && len(r.buffer) > 0 {
		return Outcome{Intent: r.resolve(), Intercepted: true}
	}
	if r.midEdit(ev) || ev.Focus == FocusSearch {
		return Outcome{}
	}
	return Outcome{Intent: Intent{Kind: IntentFinalize}, Intercepted: true}
}

func (r *Resolver) backspace(ev KeyEvent) Outcome {
	if ev.Focus != FocusSearch || len(r.buffer) == 0 {
		return Outcome{}
	}
	r.buffer = r.buffer[:len(r.buffer)-1]
	if len(r.buffer) == 0 {
		r.state = Idle
	} else {
		r.state = Composing
	}
	return Outcome{}
}

func (r *Resolver) resolve() Intent {
	code := strings.TrimSpace(string(r.buffer))
	r.buffer = nil
	r.state = Idle

	if code == "" {
		return Intent{}
	}
	p, ok := r.lookup.Lookup(code)
	if !ok {
		return Intent{Kind: IntentUnresolved, Code: code}
	}
	return Intent{Kind: IntentCode, Code: code, ProductID: p.ID}
}

func (r *Resolver) midEdit(ev KeyEvent) bool {
	return r.editing || ev.Focus == FocusOther
}

func printable(ev KeyEvent) bool {
	if ev.Ctrl || ev.Alt || ev.Meta {
		return false
	}
	if utf8.RuneCountInString(ev.Key) != 1 {
		return false
	}
	c, _ := utf8.DecodeRuneInString(ev.Key)
	return unicode.IsPrint(c)
}
