package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/websocket"
)

// View is the immediate-mode UI of one session. Frame is called once when
// the session starts and once after every event.
type View interface {
	Frame(ctx *Context)
}

type server struct {
	title    string
	log      zerolog.Logger
	newView  func() View
	sessions syncMap[ulid.ULID, time.Time]
}

func newServer(title string, log zerolog.Logger, newView func() View) *server {
	return &server{
		title:   title,
		log:     log,
		newView: newView,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withLogging(s.log))
	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/ws", websocket.Handler(s.serveSession))
	return r
}

func withLogging(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			h.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("uri", r.RequestURI).
				Int("status", responseStatus(ww.Status(), r)).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// responseStatus fills in what net/http sent when the handler never called
// WriteHeader: 101 for a hijacked websocket upgrade, 200 otherwise.
func responseStatus(status int, r *http.Request) int {
	switch {
	case status != 0:
		return status
	case strings.EqualFold(r.Header.Get("Upgrade"), "websocket"):
		return http.StatusSwitchingProtocols
	default:
		return http.StatusOK
	}
}

func (s *server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexHTML, html.EscapeString(s.title))
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	}); err != nil {
		s.log.Warn().Err(err).Msg("write health")
	}
}

func (s *server) serveSession(c *websocket.Conn) {
	id := ulid.Make()
	log := s.log.With().Stringer("session", id).Logger()

	s.sessions.Set(id, time.Now())
	defer s.sessions.Delete(id)

	log.Info().Msg("session started")
	err := runSession(c.Request().Context(), wsTransport{c}, s.newView(), log)
	var age time.Duration
	if started, ok := s.sessions.Get(id); ok {
		age = time.Since(started)
	}
	if err != nil {
		log.Warn().Err(err).Dur("age", age).Msg("session failed")
		return
	}
	log.Info().Dur("age", age).Msg("session closed")
}

// transport moves raw event frames in and commands out. Receive errors are
// connection errors; frame decoding happens in runSession.
type transport interface {
	Receive() ([]byte, error)
	Send(command) error
}

type wsTransport struct {
	c *websocket.Conn
}

func (t wsTransport) Receive() ([]byte, error) {
	var msg []byte
	err := websocket.Message.Receive(t.c, &msg)
	return msg, err
}

func (t wsTransport) Send(cmd command) error {
	return jsonCodec.Send(t.c, cmd)
}

// runSession renders the first frame, then handles events one at a time:
// each event is applied and its frame flushed before the next is read off
// the queue. It returns nil when the peer goes away or ctx is done.
func runSession(ctx context.Context, t transport, view View, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	elems := elements{}
	queue := make(chan []byte)
	readErr := make(chan error, 1)
	// read events
	go func() {
		for {
			msg, err := t.Receive()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case queue <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	flush := func() error {
		for _, cmd := range render(view, elems, log) {
			if err := t.Send(cmd); err != nil {
				return errors.Wrapf(err, "failed to send %s %s", cmd.Kind, cmd.ID)
			}
		}
		return nil
	}

	if err := flush(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "failed to read event")
		case msg := <-queue:
			var e event
			if err := json.Unmarshal(msg, &e); err != nil {
				log.Warn().Err(err).Bytes("frame", msg).Msg("dropped event")
				continue
			}
			if err := elems.markEvent(e); err != nil {
				log.Warn().Err(err).Msg("dropped event")
				continue
			}
			log.Debug().Str("id", string(e.ID)).Str("event", e.Event).Msg("received event")
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>

<title>%s</title>
<script type="text/javascript">
window.onload = () => {
	const body = document.body;

	if (!window["WebSocket"]) {
		body.innerHTML = "<b>Your browser does not support WebSockets.</b>";
		return;
	}

	let ws;
	const connect = () => {
		body.innerHTML = "";
		ws = new WebSocket("ws://" + document.location.host + "/ws");
		ws.onclose = (e) => {
			console.log('Socket is closed. Reconnect will be attempted in 1 second.', e.reason);
			setTimeout(() => {
				connect();
			}, 1000);
		};
		ws.onerror = (err) => {
			console.error('Socket encountered error: ', err, 'Closing socket');
			ws.close();
		};
		ws.onmessage = (e) => {
			const message = JSON.parse(e.data);
			switch (message.kind) {
			case "ADD":
				const parent = message.parent ? document.getElementById(message.parent) : body;
				parent.insertAdjacentHTML("beforeend", message.data);
				break;
			case "REMOVE":
				document.getElementById(message.id).remove();
				break;
			case "REPLACE":
				document.getElementById(message.id).outerHTML = message.data;
				break;
			}
		};
	};

	connect();
	window.IMWEB_notify = (msg) => {
		ws.send(JSON.stringify(msg));
	};
};
</script>

</head>
<body></body>
</html>`
