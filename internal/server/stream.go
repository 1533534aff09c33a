package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/clariohq/clario/internal/app"
	"github.com/clariohq/clario/internal/observe"
	"github.com/clariohq/clario/pkg/audio"
	"github.com/clariohq/clario/pkg/audio/opus"
)

// maxMessageSize caps inbound WebSocket messages. One second of 48 kHz mono
// PCM16 is 96000 bytes; anything an order of magnitude beyond that is a
// misbehaving client.
const maxMessageSize = 1 << 20

// controlMessage is a client → server JSON text frame.
type controlMessage struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

// event is a server → client JSON text frame.
type event struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Value   *float64 `json:"value,omitempty"`
}

// streamParams are the per-connection settings negotiated via query string.
type streamParams struct {
	inputRate  int
	outputRate int
	codec      string
	channels   int
}

// parseStreamParams validates the /v1/stream query string. Zero rates mean
// "use the configured default".
func parseStreamParams(r *http.Request) (streamParams, error) {
	q := r.URL.Query()
	p := streamParams{codec: "pcm", channels: 1}

	for _, key := range []string{"input_rate", "output_rate"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return p, fmt.Errorf("invalid %s %q", key, raw)
		}
		if key == "input_rate" {
			p.inputRate = v
		} else {
			p.outputRate = v
		}
	}

	if codec := q.Get("codec"); codec != "" {
		switch codec {
		case "pcm", "opus":
			p.codec = codec
		default:
			return p, fmt.Errorf("unsupported codec %q", codec)
		}
	}
	if raw := q.Get("channels"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 2 {
			return p, fmt.Errorf("invalid channels %q", raw)
		}
		p.channels = v
	}
	return p, nil
}

// handleStream upgrades the request to a WebSocket and runs one audio session
// over it: binary frames in are audio chunks, binary frames out are processed
// PCM16, text frames carry JSON control messages and events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mgr := s.app.Sessions()
	id := uuid.NewString()
	sess, err := mgr.Create(id, app.WithRates(params.inputRate, params.outputRate))
	if err != nil {
		if errors.Is(err, app.ErrTooManySessions) {
			http.Error(w, "session limit reached", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "session setup failed", http.StatusInternalServerError)
		return
	}
	defer mgr.Release(id)

	var decoder *opus.Decoder
	if params.codec == "opus" {
		rate := params.inputRate
		if rate == 0 {
			rate = 48000
		}
		decoder, err = opus.NewDecoder(rate, params.channels)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	st := &stream{
		server:  s,
		conn:    conn,
		sess:    sess,
		decoder: decoder,
		metrics: s.app.Metrics(),
	}
	st.run(r.Context())
}

// stream is one live WebSocket audio session. The read loop is the only chunk
// producer; the silence forwarder shares the connection through writeMu.
type stream struct {
	server  *Server
	conn    *websocket.Conn
	sess    *app.Session
	decoder *opus.Decoder
	metrics *observe.Metrics

	writeMu sync.Mutex
}

func (st *stream) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := st.server.log.With("session_id", st.sess.ID())
	log.Info("stream opened")

	// Forward automatic silence resets as JSON events.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-st.sess.Silence():
				if err := st.writeEvent(ctx, event{Type: "silence"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		typ, data, err := st.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				log.Info("stream closed")
				st.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			log.Warn("stream read failed", "err", err)
			st.metrics.RecordStreamError(ctx, "read")
			st.conn.Close(websocket.StatusInternalError, "read failed")
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if err := st.handleChunk(ctx, data); err != nil {
				log.Warn("stream write failed", "err", err)
				st.metrics.RecordStreamError(ctx, "write")
				st.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case websocket.MessageText:
			st.handleControl(ctx, data)
		}
	}
}

// handleChunk decodes one inbound audio message, runs it through the session
// pipeline and sends the processed PCM back. A buffering pipeline produces no
// reply.
func (st *stream) handleChunk(ctx context.Context, data []byte) error {
	st.metrics.BytesIn.Add(ctx, int64(len(data)))

	pcm := data
	if st.decoder != nil {
		samples, err := st.decoder.DecodeToMono(data)
		if err != nil {
			st.metrics.RecordStreamError(ctx, "decode")
			return st.writeEvent(ctx, event{Type: "error", Message: "opus decode failed"})
		}
		pcm = audio.SamplesToBytes(samples)
	}

	start := time.Now()
	out := st.sess.ProcessChunk(pcm)
	st.metrics.RecordChunk(ctx, time.Since(start).Seconds(), len(out) == 0)

	if len(out) == 0 {
		return nil
	}
	st.metrics.BytesOut.Add(ctx, int64(len(out)))

	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	return st.conn.Write(ctx, websocket.MessageBinary, out)
}

// handleControl dispatches one JSON control frame. Malformed or unknown
// messages are reported back to the client without tearing down the stream.
func (st *stream) handleControl(ctx context.Context, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		st.metrics.RecordStreamError(ctx, "control")
		_ = st.writeEvent(ctx, event{Type: "error", Message: "malformed control message"})
		return
	}

	switch msg.Type {
	case "reset":
		st.sess.Reset()
	case "request_reset":
		st.sess.RequestReset()
	case "set_stage":
		if err := st.sess.SetStage(msg.Stage, msg.Enabled); err != nil {
			st.metrics.RecordStreamError(ctx, "control")
			_ = st.writeEvent(ctx, event{Type: "error", Message: err.Error()})
		}
	case "speech_probability":
		p := st.sess.SpeechProbability()
		_ = st.writeEvent(ctx, event{Type: "speech_probability", Value: &p})
	default:
		st.metrics.RecordStreamError(ctx, "control")
		_ = st.writeEvent(ctx, event{Type: "error", Message: fmt.Sprintf("unknown control type %q", msg.Type)})
	}
}

// writeEvent marshals and sends one JSON event frame.
func (st *stream) writeEvent(ctx context.Context, ev event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	return st.conn.Write(ctx, websocket.MessageText, data)
}
