package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukasbauer/lucilta/internal/consultation"
	"github.com/lukasbauer/lucilta/internal/eventlog"
	"github.com/lukasbauer/lucilta/internal/segmenter"
	"github.com/lukasbauer/lucilta/internal/store"
	"github.com/lukasbauer/lucilta/internal/stt"
	"github.com/lukasbauer/lucilta/internal/triage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const maxClientMessage = 64 << 10

// Client -> server messages. Binary frames carry PCM audio.
type clientMessage struct {
	Type       string `json:"type"` // transcript | end
	Transcript string `json:"transcript,omitempty"`
	Listening  *bool  `json:"listening,omitempty"`
}

// Server -> client messages.
type serverMessage struct {
	Type       string     `json:"type"` // turn | listening | transcript | reset_transcript | ended | error
	Role       string     `json:"role,omitempty"`
	Content    string     `json:"content,omitempty"`
	Listening  *bool      `json:"listening,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
	Data       *endedData `json:"data,omitempty"`
	Error      string     `json:"error,omitempty"`
	Message    string     `json:"message,omitempty"`
}

type endedData struct {
	Reason   string               `json:"reason"`
	Record   *store.MedicalRecord `json:"record,omitempty"`
	Analysis *triage.Analysis     `json:"analysis,omitempty"`
}

// consultationSession ties one browser WebSocket to a segmenter and a
// consultation manager.
type consultationSession struct {
	id     string
	req    *http.Request
	logger *slog.Logger
	events *eventlog.Logger

	conn         *websocket.Conn
	connMu       sync.Mutex
	writeTimeout time.Duration

	seg        *segmenter.Segmenter
	mgr        *consultation.Manager
	sttClient  stt.Client
	transcript stt.Transcript

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleConsultationWS(w http.ResponseWriter, req *http.Request) {
	if r.sessions.IsDraining() {
		http.Error(w, `{"success":false,"message":"server draining"}`, http.StatusServiceUnavailable)
		return
	}
	if r.chat == nil {
		http.Error(w, `{"success":false,"message":"triage assistant not configured"}`, http.StatusServiceUnavailable)
		return
	}

	id, err := r.tickets.Redeem(req.URL.Query().Get("token"))
	if err != nil {
		r.logger.Warn("consultation ticket rejected", "error", err)
		http.Error(w, `{"success":false,"message":"invalid session ticket"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("consultation_ws: upgrade failed", "consultation_id", id, "error", err)
		return
	}
	conn.SetReadLimit(maxClientMessage)

	ctx, cancel := context.WithCancel(req.Context())
	logger := r.logger.With("consultation_id", id)

	s := &consultationSession{
		id:           id,
		req:          req,
		logger:       logger,
		events:       r.events,
		conn:         conn,
		writeTimeout: r.cfg.WriteTimeout,
		seg:          segmenter.New(r.cfg.Segmenter, logger),
		ctx:          ctx,
		cancel:       cancel,
	}
	s.mgr = consultation.New(consultation.Config{
		ID:          id,
		Chat:        r.chat,
		Store:       r.store,
		Listener:    sessionListener{s},
		Observer:    s,
		Events:      r.events,
		Notifier:    r.notifier,
		Logger:      r.logger,
		SaveTimeout: r.cfg.SaveTimeout,
	})

	if !r.sessions.Add(id, s.mgr) {
		s.send(serverMessage{Type: "error", Message: "server draining"})
		s.seg.Close()
		cancel()
		_ = conn.Close()
		return
	}
	defer r.sessions.Done(id)

	if r.dialSTT != nil {
		client, err := r.dialSTT(ctx)
		if err != nil {
			// Browser transcripts still work without server-side recognition.
			logger.Error("consultation_ws: speech-to-text unavailable", "error", err)
			captureError(req, err, "consultation_ws: stt dial")
			s.send(serverMessage{Type: "error", Message: "speech-to-text unavailable"})
		} else {
			s.sttClient = client
			s.wg.Add(1)
			go s.processSTTResults()
		}
	}

	s.wg.Add(1)
	go s.processSegments()

	logger.Info("consultation_ws: session opened", "server_stt", s.sttClient != nil)
	s.mgr.Start()
	s.run()
}

func (s *consultationSession) run() {
	defer s.cleanup()

	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || s.mgr.Ended() {
				s.logger.Info("consultation_ws: connection closed")
			} else {
				s.logger.Warn("consultation_ws: read error", "error", err)
			}
			return
		}

		if mt == websocket.BinaryMessage {
			s.handleAudio(msg)
			continue
		}

		var cm clientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			s.logger.Warn("consultation_ws: failed to parse message", "error", err)
			s.send(serverMessage{Type: "error", Message: "invalid message"})
			continue
		}

		switch cm.Type {
		case "transcript":
			if cm.Listening != nil && !*cm.Listening {
				continue
			}
			s.seg.Update(cm.Transcript)

		case "end":
			s.mgr.End(consultation.ReasonHangup)
			return

		default:
			s.send(serverMessage{Type: "error", Message: "unknown message type"})
		}
	}
}

func (s *consultationSession) handleAudio(frame []byte) {
	if s.sttClient == nil {
		return
	}
	if err := s.sttClient.StreamAudio(s.ctx, frame); err != nil {
		s.logger.Debug("consultation_ws: audio dropped", "error", err)
	}
}

// processSTTResults turns provider results into the cumulative transcript
// the segmenter expects.
func (s *consultationSession) processSTTResults() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case err, ok := <-s.sttClient.Errors():
			if !ok {
				return
			}
			s.logger.Error("consultation_ws: stt error", "error", err)
			s.send(serverMessage{Type: "error", Message: "speech-to-text interrupted"})
			return

		case result, ok := <-s.sttClient.Results():
			if !ok {
				return
			}
			text := s.transcript.Apply(result)
			s.send(serverMessage{Type: "transcript", Transcript: text})
			s.seg.Update(text)
		}
	}
}

// processSegments runs utterances through the manager one at a time. The
// loop ends when the segmenter is closed.
func (s *consultationSession) processSegments() {
	defer s.wg.Done()

	for ev := range s.seg.Events() {
		switch ev.Kind {
		case segmenter.EventUtterance:
			s.mgr.HandleUtterance(s.ctx, ev.Text)

		case segmenter.EventDiscard:
			if ev.Reason == segmenter.ReasonReset {
				// Already sent by sessionListener.Reset.
				continue
			}
			s.transcript.Reset()
			s.events.LogAsync(s.id, eventlog.EventTranscriptDiscarded, map[string]any{"reason": ev.Reason})
			s.send(serverMessage{Type: "reset_transcript"})
		}
	}
}

// OnTurn implements consultation.Observer.
func (s *consultationSession) OnTurn(t store.Turn) {
	s.send(serverMessage{Type: "turn", Role: t.Role, Content: t.Content})
}

// OnListening implements consultation.Observer.
func (s *consultationSession) OnListening(listening bool) {
	s.send(serverMessage{Type: "listening", Listening: &listening})
}

// OnEnded implements consultation.Observer. It reports the outcome and
// closes the socket, which ends the read loop.
func (s *consultationSession) OnEnded(out consultation.Outcome) {
	msg := serverMessage{
		Type: "ended",
		Data: &endedData{Reason: out.Reason, Record: out.Record, Analysis: out.Analysis},
	}
	if out.Err != nil {
		msg.Error = "Erro ao salvar prontuário médico"
		captureError(s.req, out.Err, "consultation_ws: record not saved")
	}
	s.send(msg)

	s.connMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, out.Reason))
	_ = s.conn.Close()
	s.connMu.Unlock()
}

func (s *consultationSession) send(m serverMessage) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(m); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("consultation_ws: write failed", "type", m.Type, "error", err)
	}
}

func (s *consultationSession) cleanup() {
	// No-op when the consultation already finished.
	s.mgr.End(consultation.ReasonHangup)
	s.cancel()

	if s.sttClient != nil {
		_ = s.sttClient.Close()
	}

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.wg.Wait()
	s.logger.Info("consultation_ws: session cleaned up")
}

// sessionListener clears the server-side transcript together with the
// segmenter so a resumed session starts from silence. Reset tells the client
// to clear its transcript before the manager reports listening again.
type sessionListener struct{ s *consultationSession }

func (l sessionListener) Pause()  { l.s.seg.Pause() }
func (l sessionListener) Resume() { l.s.seg.Resume() }
func (l sessionListener) Close()  { l.s.seg.Close() }

func (l sessionListener) Reset() {
	l.s.transcript.Reset()
	l.s.seg.Reset()
	l.s.send(serverMessage{Type: "reset_transcript"})
}
