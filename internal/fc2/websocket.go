package fc2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"

	"github.com/fc2dl/fc2dl/internal/observability"
	"github.com/fc2dl/fc2dl/internal/version"
)

const (
	// heartbeatInterval is how often the client sends its keepalive once
	// frames start flowing.
	heartbeatInterval = 30 * time.Second

	// readTimeout bounds how long the read loop waits for the next frame.
	readTimeout = 30 * time.Second

	// responseTimeout bounds one send-and-wait round trip.
	responseTimeout = 5 * time.Second

	// commentBuffer is how many chat messages may sit unread before new
	// ones are dropped.
	commentBuffer = 100
)

var errResponseTimeout = errors.New("timed out waiting for response from server")

// message is one JSON frame on the control channel.
type message struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	ID        int             `json:"id,omitempty"`
}

// outMessage is the client-to-server form; arguments are always present,
// at minimum as an empty object.
type outMessage struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
	ID        int    `json:"id"`
}

// Comment is one chat message relayed over the control channel.
type Comment struct {
	UserName      string `json:"user_name"`
	Comment       string `json:"comment"`
	Timestamp     int64  `json:"timestamp"`
	EncryptedUser string `json:"encrypted_user"`
}

// commentArguments is the payload of a "comment" frame.
type commentArguments struct {
	Comments []Comment `json:"comments"`
}

// wsTimings holds the session timing knobs. Tests shorten them.
type wsTimings struct {
	beat  time.Duration
	resp  time.Duration
	retry time.Duration
}

func defaultTimings() wsTimings {
	return wsTimings{
		beat:  heartbeatInterval,
		resp:  responseTimeout,
		retry: time.Second,
	}
}

// WebSocket is a connected FC2 control channel. It owns a read loop and a
// heartbeat goroutine; request/response calls correlate by message ID.
// Close is idempotent and ends both goroutines.
type WebSocket struct {
	conn    *websocket.Conn
	log     *slog.Logger
	timings wsTimings

	writeMu sync.Mutex
	nextID  int

	respMu    sync.Mutex
	responses map[int]chan *message

	comments chan *Comment

	dumpMu sync.Mutex
	dump   io.Writer

	done     chan struct{}
	closeOne sync.Once
	exitErr  error
	exitMu   sync.Mutex

	// heartbeat starts only after the first frame arrives.
	startBeat sync.Once
	beatGo    func()
}

// Dial connects to the control server URL (including the control_token
// query) and starts the session goroutines. The jar, if any, rides along so
// the server sees the same cookies as the HTTP handshake. dump, if non-nil,
// receives every frame in both directions for debugging.
func Dial(ctx context.Context, wsURL string, jar http.CookieJar, dump io.Writer, logger *slog.Logger) (*WebSocket, error) {
	return dial(ctx, wsURL, jar, dump, logger, defaultTimings())
}

func dial(ctx context.Context, wsURL string, jar http.CookieJar, dump io.Writer, logger *slog.Logger, tm wsTimings) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Jar:              jar,
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dialing control server: %w", err)
	}

	ws := &WebSocket{
		conn:      conn,
		log:       logger,
		timings:   tm,
		dump:      dump,
		nextID:    1,
		responses: make(map[int]chan *message),
		comments:  make(chan *Comment, commentBuffer),
		done:      make(chan struct{}),
	}
	ws.beatGo = func() { go ws.heartbeatLoop() }
	go ws.readLoop()
	return ws, nil
}

// Comments returns the buffered chat stream. The channel is closed when
// the control channel ends.
func (ws *WebSocket) Comments() <-chan *Comment {
	return ws.comments
}

// Done is closed when the session has ended for any reason.
func (ws *WebSocket) Done() <-chan struct{} {
	return ws.done
}

// WaitDisconnection blocks until the session ends and returns the reason.
// A deliberate Close yields nil; a server disconnection yields a
// DisconnectError; anything else is the transport error.
func (ws *WebSocket) WaitDisconnection(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ws.done:
		ws.exitMu.Lock()
		defer ws.exitMu.Unlock()
		return ws.exitErr
	}
}

// Close tears the connection down. Safe to call any number of times and
// concurrently with session failure.
func (ws *WebSocket) Close() error {
	ws.shutdown(nil)
	return nil
}

func (ws *WebSocket) shutdown(reason error) {
	ws.closeOne.Do(func() {
		ws.exitMu.Lock()
		ws.exitErr = reason
		ws.exitMu.Unlock()

		ws.conn.Close()
		close(ws.done)

		ws.respMu.Lock()
		for id, ch := range ws.responses {
			close(ch)
			delete(ws.responses, id)
		}
		ws.respMu.Unlock()
	})
}

// readLoop pulls frames until the connection dies, dispatching responses,
// chat comments, and disconnection notices. It is the only sender on the
// comments channel and closes it on exit.
func (ws *WebSocket) readLoop() {
	defer close(ws.comments)
	for {
		ws.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-ws.done:
				// Deliberate close; keep the nil reason.
			default:
				ws.shutdown(fmt.Errorf("reading from control server: %w", err))
			}
			return
		}

		ws.startBeat.Do(ws.beatGo)

		ws.logFrame("< ", payload)

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			ws.log.Warn("discarding unparseable control frame", slog.String("error", err.Error()))
			continue
		}

		switch msg.Name {
		case "connect_complete":
			ws.log.Debug("control channel established")
		case "_response_":
			ws.dispatchResponse(&msg)
		case "control_disconnection":
			var args struct {
				Code int `json:"code"`
			}
			if err := json.Unmarshal(msg.Arguments, &args); err != nil {
				ws.log.Warn("discarding unparseable disconnection notice", slog.String("error", err.Error()))
				continue
			}
			ws.shutdown(&DisconnectError{Code: args.Code})
			return
		case "comment":
			ws.dispatchComments(&msg)
		case "publish_stop":
			ws.log.Debug("broadcast publish stopped")
		default:
			// Informational frames (user_count etc.) need no handling.
		}
	}
}

func (ws *WebSocket) dispatchResponse(msg *message) {
	ws.respMu.Lock()
	ch, ok := ws.responses[msg.ID]
	if ok {
		delete(ws.responses, msg.ID)
	}
	ws.respMu.Unlock()
	if !ok {
		ws.log.Debug("response with no waiter", slog.Int("id", msg.ID))
		return
	}
	ch <- msg
	close(ch)
}

func (ws *WebSocket) dispatchComments(msg *message) {
	var args commentArguments
	if err := json.Unmarshal(msg.Arguments, &args); err != nil {
		ws.log.Warn("discarding unparseable comment frame", slog.String("error", err.Error()))
		return
	}
	for i := range args.Comments {
		select {
		case ws.comments <- &args.Comments[i]:
		default:
			ws.log.Warn("comment buffer full, dropping message")
		}
	}
}

// heartbeatLoop sends the keepalive until the session ends.
func (ws *WebSocket) heartbeatLoop() {
	ticker := time.NewTicker(ws.timings.beat)
	defer ticker.Stop()
	for {
		select {
		case <-ws.done:
			return
		case <-ticker.C:
			if _, err := ws.send("heartbeat", struct{}{}, nil); err != nil {
				select {
				case <-ws.done:
				default:
					ws.shutdown(fmt.Errorf("sending heartbeat: %w", err))
				}
				return
			}
		}
	}
}

// logFrame traces a frame and mirrors it to the dump writer when one is
// attached.
func (ws *WebSocket) logFrame(direction string, payload []byte) {
	ws.log.Log(context.Background(), observability.LevelTrace, direction+string(payload))
	if ws.dump == nil {
		return
	}
	ws.dumpMu.Lock()
	fmt.Fprintf(ws.dump, "%s%s\n", direction, payload)
	ws.dumpMu.Unlock()
}

// send allocates the frame id and writes the frame inside one writeMu
// critical section, so ids reach the wire in allocation order even when the
// heartbeat races a request. register, if non-nil, observes the id before
// the frame is written.
func (ws *WebSocket) send(name string, args any, register func(id int)) (int, error) {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()

	id := ws.nextID
	ws.nextID++

	payload, err := json.Marshal(outMessage{Name: name, Arguments: args, ID: id})
	if err != nil {
		return id, err
	}
	ws.logFrame("> ", payload)
	if register != nil {
		register(id)
	}
	ws.conn.SetWriteDeadline(time.Now().Add(ws.timings.resp))
	return id, ws.conn.WriteMessage(websocket.TextMessage, payload)
}

// sendAndWait sends a request frame and waits for the matching _response_.
// The waiter is registered before the write so a fast response cannot slip
// past the correlation map.
func (ws *WebSocket) sendAndWait(ctx context.Context, name string, args any) (*message, error) {
	ch := make(chan *message, 1)

	id, err := ws.send(name, args, func(id int) {
		ws.respMu.Lock()
		ws.responses[id] = ch
		ws.respMu.Unlock()
	})

	cleanup := func() {
		ws.respMu.Lock()
		delete(ws.responses, id)
		ws.respMu.Unlock()
	}

	if err != nil {
		cleanup()
		return nil, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return msg, nil
	case <-ws.done:
		cleanup()
		ws.exitMu.Lock()
		reason := ws.exitErr
		ws.exitMu.Unlock()
		if reason != nil {
			return nil, reason
		}
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	case <-time.After(ws.timings.resp):
		cleanup()
		return nil, errResponseTimeout
	}
}

// GetHLSInformation requests the playlist catalog over the control channel,
// retrying a few times since the server occasionally answers before the
// playlists are ready.
func (ws *WebSocket) GetHLSInformation(ctx context.Context) (*HLSInformation, error) {
	info, err := retry.DoWithData(
		func() (*HLSInformation, error) {
			msg, err := ws.sendAndWait(ctx, "get_hls_information", struct{}{})
			if err != nil {
				return nil, err
			}
			return parseHLSInformation(msg.Arguments)
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(ws.timings.retry),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Transport-level failures will not heal on their own.
			return !errors.Is(err, ErrConnectionClosed) && !errors.As(err, new(*DisconnectError))
		}),
	)
	if err != nil {
		if errors.Is(err, errResponseTimeout) {
			// The server never produced a catalog; same outcome as a
			// response without playlists.
			err = ErrEmptyPlaylist
		}
		return nil, fmt.Errorf("fetching HLS information: %w", err)
	}
	return info, nil
}

// parseHLSInformation decodes the response arguments, rejecting payloads
// that lack the playlists key entirely.
func parseHLSInformation(raw json.RawMessage) (*HLSInformation, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decoding HLS information: %w", err)
	}
	if _, ok := probe["playlists"]; !ok {
		return nil, ErrEmptyPlaylist
	}
	var info HLSInformation
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decoding HLS information: %w", err)
	}
	return &info, nil
}
