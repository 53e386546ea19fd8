package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/websocket"
)

type ID string

// incoming event, e.g. button click
type event struct {
	ID    ID     `json:"id"`
	Event string `json:"event"`
}

const eventClicked = "clicked"

type commandKind string

const (
	kindAdd     commandKind = "ADD"
	kindRemove  commandKind = "REMOVE"
	kindReplace commandKind = "REPLACE"
)

// outgoing DOM update, applied by the page script in order
type command struct {
	ID     ID          `json:"id"`
	Parent ID          `json:"parent,omitempty"` // empty means body
	Data   string      `json:"data,omitempty"`
	Kind   commandKind `json:"kind"`
}

// elemState is what the browser currently shows for an element.
type elemState struct {
	HTML    string
	parent  ID
	button  bool
	clicked bool
}

// elements of one session, keyed by DOM id
type elements map[ID]*elemState

// markEvent records a browser event so the next frame can consume it.
func (es elements) markEvent(e event) error {
	st, ok := es[e.ID]
	if !ok {
		return errors.Errorf("event on unknown element %q", e.ID)
	}
	switch e.Event {
	case eventClicked:
		if !st.button {
			return errors.Errorf("click on non-button element %q", e.ID)
		}
		st.clicked = true
		return nil
	default:
		return errors.Errorf("unknown event %q on %q", e.Event, e.ID)
	}
}

// Context builds a single frame. Widgets compare their markup with what the
// browser already has and queue only the difference.
type Context struct {
	Log      zerolog.Logger
	elems    elements
	parent   ID
	seen     map[ID]struct{}
	commands []command
}

func newContext(elems elements, log zerolog.Logger) *Context {
	return &Context{
		Log:   log,
		elems: elems,
		seen:  map[ID]struct{}{},
	}
}

// emit reports whether an existing element was replaced.
func (c *Context) emit(id ID, markup string, button bool) bool {
	c.seen[id] = struct{}{}
	st, ok := c.elems[id]
	if !ok {
		c.elems[id] = &elemState{HTML: markup, parent: c.parent, button: button}
		c.commands = append(c.commands, command{ID: id, Parent: c.parent, Data: markup, Kind: kindAdd})
		return false
	}
	if st.HTML == markup {
		return false
	}
	st.HTML = markup
	c.commands = append(c.commands, command{ID: id, Data: markup, Kind: kindReplace})
	return true
}

// Container renders a div and everything body renders inside it.
func (c *Context) Container(id ID, class string, body func()) {
	markup := fmt.Sprintf(`<div%s></div>`, attrs(id, class))
	if c.emit(id, markup, false) {
		// replacing the div dropped its children in the browser
		c.forgetDescendants(id)
	}

	prev := c.parent
	c.parent = id
	defer func() { c.parent = prev }()
	body()
}

func (c *Context) Heading(level int, id ID, class, text string) {
	markup := fmt.Sprintf(`<h%[1]d%[2]s>%[3]s</h%[1]d>`, level, attrs(id, class), html.EscapeString(text))
	c.emit(id, markup, false)
}

func (c *Context) Button(id ID, label string) {
	// ID marshals to a JS string literal; escaping keeps it inside the attribute
	arg, err := json.Marshal(id)
	if err != nil {
		c.Log.Error().Err(err).Str("id", string(id)).Msg("skip button")
		return
	}
	markup := fmt.Sprintf(
		`<button%s onclick='window.IMWEB_notify({id: %s, event: "%s"})'>%s</button>`,
		attrs(id, "button"), html.EscapeString(string(arg)), eventClicked, html.EscapeString(label),
	)
	c.emit(id, markup, true)
}

// Clicked consumes a pending click on the button id.
func (c *Context) Clicked(id ID) bool {
	st, ok := c.elems[id]
	if !ok || !st.clicked {
		return false
	}
	st.clicked = false
	return true
}

func (c *Context) forgetDescendants(id ID) {
	for child, st := range c.elems {
		if st.parent == id {
			c.forgetDescendants(child)
			delete(c.elems, child)
		}
	}
}

// finish removes the elements the frame did not render and returns the
// frame's commands.
func (c *Context) finish() []command {
	var gone []ID
	for id := range c.elems {
		if _, ok := c.seen[id]; !ok {
			gone = append(gone, id)
		}
	}
	slices.Sort(gone)

	for _, id := range gone {
		// children of a removed element go away with it
		parent := c.elems[id].parent
		if _, alive := c.seen[parent]; parent == "" || alive {
			c.commands = append(c.commands, command{ID: id, Kind: kindRemove})
		}
	}
	for _, id := range gone {
		delete(c.elems, id)
	}
	return c.commands
}

// render runs one frame of view against the session's elements.
func render(view View, elems elements, log zerolog.Logger) []command {
	ctx := newContext(elems, log)
	view.Frame(ctx)
	return ctx.finish()
}

func attrs(id ID, class string) string {
	var b strings.Builder
	fmt.Fprintf(&b, ` id='%[1]s' data-test='%[1]s'`, html.EscapeString(string(id)))
	if class != "" {
		fmt.Fprintf(&b, ` class='%s'`, html.EscapeString(class))
	}
	return b.String()
}

// jsonCodec is websocket.JSON on top of go-json.
var jsonCodec = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		msg, err := json.Marshal(v)
		return msg, websocket.TextFrame, err
	},
	Unmarshal: func(msg []byte, _ byte, v any) error {
		return json.Unmarshal(msg, v)
	},
}
