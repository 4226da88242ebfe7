package protocol

// FrameKind is the classification of one inbound frame.
type FrameKind int

const (
	// KindUnrecognized marks frames with no event name or malformed
	// error payloads. They are logged and dropped, never escalated.
	KindUnrecognized FrameKind = iota

	// KindError marks control-plane error frames.
	KindError

	// KindData marks application data events bound for the event queue.
	KindData
)

// String returns the classification name.
func (k FrameKind) String() string {
	switch k {
	case KindUnrecognized:
		return "unrecognized"
	case KindError:
		return "error"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Classified is the result of classifying one decoded frame. Exactly one
// of Error and Payload is set, depending on Kind.
type Classified struct {
	Kind    FrameKind
	Error   *ErrorDescriptor // set when Kind == KindError
	Payload map[string]any   // set when Kind == KindData, verbatim frame
}

// Classify inspects a decoded frame and determines its kind. Frames
// without an event name are unrecognized. Error frames whose descriptor
// cannot be parsed degrade to unrecognized rather than failing. All
// other frames are data events carrying the full payload unmodified.
func Classify(frame map[string]any) Classified {
	name := EventName(frame)
	if name == "" {
		return Classified{Kind: KindUnrecognized}
	}

	if name == EventError {
		desc := ParseError(frame)
		if desc == nil {
			return Classified{Kind: KindUnrecognized}
		}
		return Classified{Kind: KindError, Error: desc}
	}

	return Classified{Kind: KindData, Payload: frame}
}
