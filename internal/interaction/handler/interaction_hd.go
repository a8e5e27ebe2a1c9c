package interactionHandler

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"

	"JustNowBackend/internal/api/intent"
	"JustNowBackend/internal/interaction"
	"JustNowBackend/internal/middleware"
	contextPkg "JustNowBackend/pkg/context"
	"JustNowBackend/pkg/log"
)

const (
	maxReadTimeout = 120 * time.Second
	processTimeout = 10 * time.Second
	writeTimeout   = 10 * time.Second
)

// clientEvent is one message from the device: a press, a release, a cancel,
// a render acknowledgement, or a widget tap.
type clientEvent struct {
	Event           string                 `json:"event"`
	Text            string                 `json:"text,omitempty"`
	AudioB64        string                 `json:"audio_b64,omitempty"`
	ConfidenceScore *float64               `json:"confidence_score,omitempty"`
	Slots           map[string]interface{} `json:"slots,omitempty"`
	WidgetID        string                 `json:"widget_id,omitempty"`
	Scenario        string                 `json:"scenario,omitempty"`
}

type serverEvent struct {
	Snapshot interaction.Snapshot `json:"snapshot"`
	Status   int                  `json:"status,omitempty"`
	Body     string               `json:"body,omitempty"`
}

// session owns one connection's machine and serializes writes back to it.
type session struct {
	handler   *InteractionHandler
	conn      *websocket.Conn
	machine   *interaction.Machine
	deviceID  string
	requestID string

	writeMu sync.Mutex
}

func (h *InteractionHandler) handleSession(c *websocket.Conn) {
	deviceID, _ := c.Locals("device_id").(string)
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	if deviceID == "" {
		_ = c.WriteJSON(map[string]string{"error": "unauthorized"})
		return
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"device_id":  deviceID,
	}).Info("Interaction session connected")
	defer h.log.WithFields(log.Fields{
		"request_id": requestID,
		"device_id":  deviceID,
	}).Info("Interaction session disconnected")

	s := &session{
		handler:   h,
		conn:      c,
		deviceID:  deviceID,
		requestID: requestID,
	}
	s.machine = interaction.NewMachine(h.log, h.utils, deviceID,
		interaction.WithChangeListener(func(snap interaction.Snapshot) {
			s.push(serverEvent{Snapshot: snap})
		}),
	)

	c.SetPingHandler(func(data string) error {
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	s.push(serverEvent{Snapshot: s.machine.Snapshot()})

	for {
		if err := c.SetReadDeadline(time.Now().Add(maxReadTimeout)); err != nil {
			break
		}

		var event clientEvent
		if err := c.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithFields(log.Fields{
					"request_id": requestID,
					"error":      err.Error(),
				}).Warn("Interaction session read error")
			}
			break
		}

		s.dispatch(event)
	}

	// Connection gone: anything still thinking is treated as a cancel so
	// the reservation is released and the attempt stays billable.
	if _, inFlight := s.machine.Cancel(); inFlight != "" {
		s.cancelAttempt(inFlight)
	}
}

func (s *session) dispatch(event clientEvent) {
	switch event.Event {
	case "start_capture":
		s.machine.StartCapture()

	case "stop_capture":
		s.handleStopCapture(event)

	case "cancel":
		_, inFlight := s.machine.Cancel()
		if inFlight != "" {
			s.cancelAttempt(inFlight)
		}

	case "render_complete":
		s.machine.RenderComplete()

	case "widget_action":
		snap, attemptKey, ok := s.machine.WidgetAction(event.WidgetID)
		if !ok {
			s.push(serverEvent{Snapshot: snap})
			return
		}
		req := intent.ProcessIntentRequest{TextInput: event.WidgetID, Slots: event.Slots}
		go s.process(attemptKey, event.Scenario, req)

	default:
		s.handler.log.WithFields(log.Fields{
			"request_id": s.requestID,
			"event":      event.Event,
		}).Warn("Unknown interaction event")
	}
}

func (s *session) handleStopCapture(event clientEvent) {
	text := event.Text
	confidence := event.ConfidenceScore
	slots := event.Slots

	// Audio frames go through the transcription bridge; an explicit text
	// field means the device already ran recognition on its side.
	if text == "" && event.AudioB64 != "" && s.handler.transcriber != nil {
		audio, err := base64.StdEncoding.DecodeString(event.AudioB64)
		if err == nil {
			if result, trErr := s.handler.transcriber.Transcribe(audio); trErr == nil {
				text = result.Text
				confidence = &result.Confidence
				if slots == nil {
					slots = result.Slots
				}
			} else {
				s.handler.log.WithFields(log.Fields{
					"request_id": s.requestID,
					"error":      trErr.Error(),
				}).Warn("Transcription failed; treating capture as unrecognized")
			}
		}
	}

	snap, dispatchNow := s.machine.StopCapture(text)
	if !dispatchNow {
		return
	}

	if text == "" {
		// Nothing usable came out of the capture. Rejecting here keeps
		// the flow identical to a low-confidence recognition.
		zero := 0.0
		confidence = &zero
	}

	req := intent.ProcessIntentRequest{
		TextInput:       text,
		Slots:           slots,
		ConfidenceScore: confidence,
	}
	if req.TextInput == "" {
		req.TextInput = "(unrecognized)"
	}

	go s.process(snap.AttemptKey, event.Scenario, req)
}

func (s *session) process(attemptKey, scenario string, req intent.ProcessIntentRequest) {
	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), s.requestID), processTimeout)
	defer cancel()

	outcome, err := s.handler.intentService.ProcessIntent(ctx, s.deviceID, attemptKey, scenario, req)
	if err != nil {
		s.handler.log.WithFields(log.Fields{
			"request_id":  s.requestID,
			"attempt_key": attemptKey,
			"error":       err.Error(),
		}).Error("Interaction processing failed")
		s.machine.Cancel()
		return
	}

	snap := s.machine.ApplyOutcome(attemptKey, outcome)
	if snap.AttemptKey != attemptKey {
		return
	}

	s.push(serverEvent{
		Snapshot: snap,
		Status:   outcome.Status,
		Body:     string(outcome.Body),
	})
}

func (s *session) cancelAttempt(attemptKey string) {
	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), s.requestID), processTimeout)
	defer cancel()

	if err := s.handler.intentService.CancelAttempt(ctx, s.deviceID, attemptKey); err != nil {
		s.handler.log.WithFields(log.Fields{
			"request_id":  s.requestID,
			"attempt_key": attemptKey,
			"error":       err.Error(),
		}).Warn("Failed to record canceled attempt")
	}
}

func (s *session) push(event serverEvent) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return
	}
	if err := s.conn.WriteJSON(event); err != nil {
		s.handler.log.WithFields(log.Fields{
			"request_id": s.requestID,
			"error":      err.Error(),
		}).Warn("Failed to push interaction event")
	}
}
