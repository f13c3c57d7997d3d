package eventbus

import (
	"github.com/bytedance/sonic"

	"odiadev-tts-server-go/internal/platform/logging"
)

// EventHandler reacts to a single published event.
type EventHandler interface {
	Handle(eventType string, data interface{})
}

// LoggingHandler writes every event it receives to the log as JSON.
type LoggingHandler struct {
	logger *logging.Logger
}

func NewLoggingHandler(logger *logging.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

func (h *LoggingHandler) Handle(eventType string, data interface{}) {
	payload, err := sonic.MarshalString(data)
	if err != nil {
		payload = "<unencodable>"
	}
	switch eventType {
	case EventCloneFailed, EventSystemError:
		h.logger.WarnTag("EventBus", "%s %s", eventType, payload)
	default:
		h.logger.InfoTag("EventBus", "%s %s", eventType, payload)
	}
}

// SetupEventHandlers attaches the logging handler to the clone and voice topics.
func SetupEventHandlers(bus Bus, handler EventHandler) error {
	subscriptions := map[string]interface{}{
		EventCloneSubmitted:  func(data CloneEventData) { handler.Handle(EventCloneSubmitted, data) },
		EventCloneCompleted:  func(data CloneEventData) { handler.Handle(EventCloneCompleted, data) },
		EventCloneFailed:     func(data CloneEventData) { handler.Handle(EventCloneFailed, data) },
		EventVoiceRegistered: func(data VoiceEventData) { handler.Handle(EventVoiceRegistered, data) },
		EventSystemError:     func(data SystemEventData) { handler.Handle(EventSystemError, data) },
	}
	for topic, fn := range subscriptions {
		if err := bus.Subscribe(topic, fn); err != nil {
			return err
		}
	}
	return nil
}
