package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SSEHeartbeatInterval is the interval for SSE heartbeats.
const SSEHeartbeatInterval = 30 * time.Second

// connectedEvent is sent first on every stream.
var connectedEvent = []byte(`{"type":"server.connected","data":{}}`)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeData writes one message event whose data is already JSON.
func (s *sseWriter) writeData(payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("event payload is not JSON")
	}
	if _, err := fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", payload); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams every bus event as {"type": ..., "data": ...}.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	messages, err := s.stream(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := sse.writeData(connectedEvent); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			err := sse.writeData(msg.Payload)
			msg.Ack()
			if err != nil {
				s.log.Debug().Err(err).Str("type", msg.Metadata.Get("type")).Msg("event not streamed")
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
