// Package voice owns the speech-recognition channel: one live websocket
// connection to the local recognition engine, and the supervision needed to
// replace instances the engine unilaterally terminates.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mhutchens/heycam/internal/session"
)

// engineMessage is one event frame from the recognition engine. A result
// frame may carry several alternatives for the same utterance; only the
// most recent one is usable.
type engineMessage struct {
	Type        string   `json:"type"`
	Transcripts []string `json:"transcripts,omitempty"`
	Code        string   `json:"code,omitempty"`
}

// channel is one live engine connection. Instances are single-use: once the
// read loop exits the channel is dead and must be replaced, never redialed.
type channel struct {
	conn   *websocket.Conn
	sink   session.VoiceSink
	logger *slog.Logger
	done   chan struct{}
}

func dialChannel(ctx context.Context, url string, timeout time.Duration, sink session.VoiceSink, logger *slog.Logger) (*channel, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial speech engine %q: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	ch := &channel{
		conn:   conn,
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// readLoop forwards engine events to the sink. Any read failure, including
// a clean close after engine silence timeout, counts as termination.
func (c *channel) readLoop() {
	defer close(c.done)
	defer func() { _ = c.conn.Close() }()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.sink.VoiceTerminated()
			return
		}

		var msg engineMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Debug("discard malformed engine frame", "error", err.Error())
			continue
		}

		switch msg.Type {
		case "result":
			if len(msg.Transcripts) == 0 {
				continue
			}
			// Older interim alternatives in the batch are discarded.
			c.sink.VoiceResult(msg.Transcripts[len(msg.Transcripts)-1])
		case "error":
			c.sink.VoiceError(msg.Code)
		default:
			c.logger.Debug("discard unknown engine frame", "type", msg.Type)
		}
	}
}

func (c *channel) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
