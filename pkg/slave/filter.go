package slave

import "github.com/robotalks/simple485.go/pkg/wire"

// Accept checks if a frame is addressed to local or to all slaves.
func Accept(f wire.Frame, local wire.Address) bool {
	return f.Destination == local || f.Destination.IsBroadcast()
}
