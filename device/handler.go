package device

// InterfaceNumber is a bInterfaceNumber assigned by the Builder.
type InterfaceNumber uint8

// StringIndex is a string descriptor index assigned by the Builder.
type StringIndex uint8

// Response is the outcome of a control request a handler has claimed.
type Response uint8

// Control request outcomes.
const (
	// ResponseAccepted completes the transfer with a successful status stage.
	ResponseAccepted Response = iota
	// ResponseRejected stalls EP0 so the host sees the request fail.
	ResponseRejected
)

// String returns the response name.
func (r Response) String() string {
	if r == ResponseAccepted {
		return "accepted"
	}
	return "rejected"
}

// Handler receives the non-standard control traffic and string lookups of
// a device. Every method reports through its boolean result whether the
// request belongs to this handler; a false result lets the Device offer the
// request to the next registered handler.
//
// Handlers are invoked one at a time from the stack's control loop and must
// not block.
type Handler interface {
	// ControlOut handles a host-to-device request and its data stage.
	ControlOut(setup *SetupPacket, data []byte) (Response, bool)

	// ControlIn handles a device-to-host request, writing the data stage
	// into buf. The returned count is ignored unless the request is accepted.
	ControlIn(setup *SetupPacket, buf []byte) (int, Response, bool)

	// GetString returns the text of a string descriptor index this handler
	// allocated.
	GetString(index StringIndex, langID uint16) (string, bool)
}

// BaseHandler declines every request. Embed it to implement only the
// Handler methods a class needs.
type BaseHandler struct{}

// ControlOut implements Handler.
func (BaseHandler) ControlOut(*SetupPacket, []byte) (Response, bool) {
	return ResponseRejected, false
}

// ControlIn implements Handler.
func (BaseHandler) ControlIn(*SetupPacket, []byte) (int, Response, bool) {
	return 0, ResponseRejected, false
}

// GetString implements Handler.
func (BaseHandler) GetString(StringIndex, uint16) (string, bool) {
	return "", false
}
