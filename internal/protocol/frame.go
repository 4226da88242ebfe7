package protocol

import (
	"encoding/json"
	"fmt"
)

// Reserved event names defined by the protocol. Everything else is
// application data.
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventError                 = "pusher:error"
	EventPing                  = "pusher:ping"
	EventPong                  = "pusher:pong"
	EventSubscribe             = "pusher:subscribe"
	EventUnsubscribe           = "pusher:unsubscribe"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
)

// Decode parses one inbound text frame into a generic mapping.
func Decode(text []byte) (map[string]any, error) {
	var frame map[string]any
	if err := json.Unmarshal(text, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// EventName returns the frame's event name, or "" if the frame does not
// carry a string "event" key.
func EventName(frame map[string]any) string {
	name, _ := frame["event"].(string)
	return name
}

// ChannelName returns the frame's channel name, or "" if absent.
func ChannelName(frame map[string]any) string {
	name, _ := frame["channel"].(string)
	return name
}

// ErrorDescriptor is the parsed content of a control-plane error frame.
type ErrorDescriptor struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ParseError extracts an error descriptor from a decoded error frame.
// The "data" member is either an inline object or a JSON-encoded string.
// Returns nil when no well-formed descriptor is present.
func ParseError(frame map[string]any) *ErrorDescriptor {
	raw, ok := frame["data"]
	if !ok {
		return nil
	}

	switch data := raw.(type) {
	case map[string]any:
		desc := &ErrorDescriptor{}
		if msg, ok := data["message"].(string); ok {
			desc.Message = msg
		} else {
			return nil
		}
		if code, ok := data["code"].(float64); ok {
			desc.Code = int(code)
		}
		return desc

	case string:
		var desc ErrorDescriptor
		if err := json.Unmarshal([]byte(data), &desc); err != nil {
			return nil
		}
		if desc.Message == "" {
			return nil
		}
		return &desc
	}

	return nil
}

// Handshake is the payload of a connection_established frame.
type Handshake struct {
	SocketID        string  `json:"socket_id"`
	ActivityTimeout float64 `json:"activity_timeout"`
}

// ParseHandshake extracts the handshake payload from a decoded
// connection_established frame. Returns nil if the payload is malformed.
func ParseHandshake(frame map[string]any) *Handshake {
	raw, ok := frame["data"]
	if !ok {
		return nil
	}

	switch data := raw.(type) {
	case map[string]any:
		hs := &Handshake{}
		if id, ok := data["socket_id"].(string); ok {
			hs.SocketID = id
		}
		if timeout, ok := data["activity_timeout"].(float64); ok {
			hs.ActivityTimeout = timeout
		}
		if hs.SocketID == "" {
			return nil
		}
		return hs

	case string:
		var hs Handshake
		if err := json.Unmarshal([]byte(data), &hs); err != nil {
			return nil
		}
		if hs.SocketID == "" {
			return nil
		}
		return &hs
	}

	return nil
}

// outboundFrame is the wire shape of a command sent to the server.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type channelData struct {
	Channel string `json:"channel"`
}

// SubscribeFrame encodes a channel subscription command.
func SubscribeFrame(channel string) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Event: EventSubscribe,
		Data:  channelData{Channel: channel},
	})
}

// UnsubscribeFrame encodes a channel unsubscribe command.
func UnsubscribeFrame(channel string) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Event: EventUnsubscribe,
		Data:  channelData{Channel: channel},
	})
}

// PongFrame encodes a reply to an application-level ping.
func PongFrame() ([]byte, error) {
	return json.Marshal(outboundFrame{
		Event: EventPong,
		Data:  struct{}{},
	})
}
