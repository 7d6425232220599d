package camera

import "fmt"

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String returns the resolution as "WIDTHxHEIGHT".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero returns true for the zero-size resolution used by sentinel frames.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// FrameFormat is a pixel format tag (FourCC-style).
type FrameFormat string

// Frame formats a backend may produce. Backends are free to support a
// subset; the facade never interprets pixel data.
const (
	FormatMJPEG FrameFormat = "MJPG"
	FormatYUYV  FrameFormat = "YUYV"
	FormatNV12  FrameFormat = "NV12"
	FormatGray  FrameFormat = "GRAY"
	FormatBGR   FrameFormat = "BGR3"
	FormatRGB   FrameFormat = "RGB3"
)

// CameraFormat bundles the negotiated resolution, pixel format and frame
// rate of a capture stream.
type CameraFormat struct {
	Resolution  Resolution  `json:"resolution"`
	FrameFormat FrameFormat `json:"frame_format"`
	FrameRate   int         `json:"frame_rate"`
}

// String returns a compact "WxH@FPS FORMAT" description.
func (f CameraFormat) String() string {
	return fmt.Sprintf("%s@%dfps %s", f.Resolution, f.FrameRate, f.FrameFormat)
}

// DeviceInfo identifies a capture device.
type DeviceInfo struct {
	// Index is the backend-specific device index (e.g. /dev/video0 -> 0).
	Index int `json:"index"`

	// Name is the human-readable device name.
	Name string `json:"name"`

	// Description identifies the backend or driver in use.
	Description string `json:"description"`
}

// ControlID names a tunable device control (brightness, gain, ...).
type ControlID string

// Controls commonly exposed by capture backends. A backend reports the
// subset it actually supports via Device.Controls.
const (
	ControlBrightness   ControlID = "brightness"
	ControlContrast     ControlID = "contrast"
	ControlSaturation   ControlID = "saturation"
	ControlHue          ControlID = "hue"
	ControlGain         ControlID = "gain"
	ControlExposure     ControlID = "exposure"
	ControlAutoExposure ControlID = "auto_exposure"
	ControlSharpness    ControlID = "sharpness"
	ControlGamma        ControlID = "gamma"
	ControlWhiteBalance ControlID = "white_balance"
	ControlFocus        ControlID = "focus"
	ControlAutoFocus    ControlID = "auto_focus"
	ControlZoom         ControlID = "zoom"
)

// ControlValue is a raw control value. Ranges and units are device
// specific; the facade passes values through untouched.
type ControlValue float64
