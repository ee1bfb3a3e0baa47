package bus

import "shellbridge/pkg/frame"

// Envelope is one raw message event as received from a frame.
type Envelope struct {
	Origin  string       `json:"origin"`
	FrameID string       `json:"frame_id,omitempty"`
	Source  frame.Window `json:"-"`
	Data    []byte       `json:"data"`
}
