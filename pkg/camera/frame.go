package camera

import "time"

// Frame is a single captured frame: resolution, pixel format tag and the
// raw payload, plus a capture timestamp and a monotonically increasing
// sequence number assigned by the facade.
//
// Frames handed to callbacks and returned from LastFrame/PollFrame own
// their payload; mutating Data never affects another holder's copy.
type Frame struct {
	Resolution Resolution  `json:"resolution"`
	Format     FrameFormat `json:"format"`
	Data       []byte      `json:"-"`
	Seq        uint64      `json:"seq"`
	Timestamp  time.Time   `json:"timestamp"`
}

// sentinelFrame is the placeholder cached before the first capture and
// after a format change: correctly shaped, but with no payload.
func sentinelFrame(res Resolution, format FrameFormat) Frame {
	return Frame{Resolution: res, Format: format}
}

// Clone returns an independent deep copy of the frame.
func (f Frame) Clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = make([]byte, len(f.Data))
		copy(out.Data, f.Data)
	}
	return out
}

// IsSentinel reports whether the frame is a placeholder rather than real
// capture output. LastFrame returns a sentinel until the first successful
// capture, and again right after a resolution or format change.
func (f Frame) IsSentinel() bool {
	return len(f.Data) == 0
}
