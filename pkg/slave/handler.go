package slave

// Handler implements the behavior of a device.
type Handler interface {
	// HandleUnicast handles a message addressed to this slave.
	// A non-nil Response is sent back to the sender.
	HandleUnicast(msg ReceivedMessage) *Response
}

// BroadcastHandler is optionally implemented by a Handler to handle
// broadcast messages separately. Broadcasts never get a response.
type BroadcastHandler interface {
	HandleBroadcast(msg ReceivedMessage)
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(msg ReceivedMessage) *Response

// HandleUnicast implements Handler.
func (f HandlerFunc) HandleUnicast(msg ReceivedMessage) *Response {
	return f(msg)
}
