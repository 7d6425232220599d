// Package opencv binds camera.Device to an OpenCV VideoCapture via gocv.
//
// OpenCV always hands frames back as BGR mats, so the backend supports
// two payload formats: camera.FormatMJPEG (frames re-encoded to JPEG,
// convenient for HTTP preview) and camera.FormatBGR (raw 8-bit BGR).
// Any other requested format falls back to FormatBGR. Drivers are free
// to clamp resolution and frame rate; the negotiated values are read
// back after every set.
package opencv

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-camera/pkg/camera"
)

// Sentinel errors for common error conditions.
var (
	// ErrStreamNotOpen is returned when capturing on a closed stream.
	ErrStreamNotOpen = errors.New("opencv: stream not open")

	// ErrDeviceClosed is returned when operating on a closed device.
	ErrDeviceClosed = errors.New("opencv: device closed")

	// ErrReadFailed is returned when the driver produced no frame.
	ErrReadFailed = errors.New("opencv: read returned no frame")
)

// controlProps maps portable control IDs onto OpenCV capture properties.
// OpenCV has no API to query which of these a given driver honors, so
// Controls reports the whole map and unsupported ones read as 0.
var controlProps = map[camera.ControlID]gocv.VideoCaptureProperties{
	camera.ControlBrightness:   gocv.VideoCaptureBrightness,
	camera.ControlContrast:     gocv.VideoCaptureContrast,
	camera.ControlSaturation:   gocv.VideoCaptureSaturation,
	camera.ControlHue:          gocv.VideoCaptureHue,
	camera.ControlGain:         gocv.VideoCaptureGain,
	camera.ControlExposure:     gocv.VideoCaptureExposure,
	camera.ControlAutoExposure: gocv.VideoCaptureAutoExposure,
	camera.ControlSharpness:    gocv.VideoCaptureSharpness,
	camera.ControlGamma:        gocv.VideoCaptureGamma,
	camera.ControlWhiteBalance: gocv.VideoCaptureTemperature,
	camera.ControlFocus:        gocv.VideoCaptureFocus,
	camera.ControlAutoFocus:    gocv.VideoCaptureAutoFocus,
	camera.ControlZoom:         gocv.VideoCaptureZoom,
}

// Device implements camera.Device on top of gocv.VideoCapture.
//
// Device is not safe for concurrent use on its own; camera.CallbackCamera
// serializes all access on its device lock.
type Device struct {
	index  int
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	format camera.CameraFormat
	open   bool
	closed bool
}

// Open grabs the capture device at index and negotiates the requested
// format. The stream is open on return; wrap the device in a
// camera.CallbackCamera to start delivering frames.
func Open(index int, req camera.CameraFormat) (*Device, error) {
	d := &Device{
		index: index,
		mat:   gocv.NewMat(),
	}
	if err := d.openCapture(req); err != nil {
		d.mat.Close()
		return nil, err
	}
	return d, nil
}

// openCapture opens the VideoCapture handle and applies the format.
func (d *Device) openCapture(req camera.CameraFormat) error {
	cap, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return fmt.Errorf("opencv: open device %d: %w", d.index, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("opencv: device %d did not open", d.index)
	}
	d.cap = cap
	d.open = true
	d.applyFormat(req)
	return nil
}

// applyFormat pushes the requested format to the driver and records what
// the driver actually granted.
func (d *Device) applyFormat(req camera.CameraFormat) {
	tag := req.FrameFormat
	if tag != camera.FormatMJPEG {
		tag = camera.FormatBGR
	}
	if tag == camera.FormatMJPEG {
		d.cap.Set(gocv.VideoCaptureFOURCC, fourcc("MJPG"))
	}
	if req.Resolution.Width > 0 {
		d.cap.Set(gocv.VideoCaptureFrameWidth, float64(req.Resolution.Width))
	}
	if req.Resolution.Height > 0 {
		d.cap.Set(gocv.VideoCaptureFrameHeight, float64(req.Resolution.Height))
	}
	if req.FrameRate > 0 {
		d.cap.Set(gocv.VideoCaptureFPS, float64(req.FrameRate))
	}

	d.format = camera.CameraFormat{
		Resolution: camera.Resolution{
			Width:  int(d.cap.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(d.cap.Get(gocv.VideoCaptureFrameHeight)),
		},
		FrameFormat: tag,
		FrameRate:   int(math.Round(d.cap.Get(gocv.VideoCaptureFPS))),
	}
}

// Info implements camera.Device.
func (d *Device) Info() camera.DeviceInfo {
	return camera.DeviceInfo{
		Index:       d.index,
		Name:        fmt.Sprintf("opencv:%d", d.index),
		Description: "OpenCV VideoCapture backend",
	}
}

// Format implements camera.Device.
func (d *Device) Format() (camera.CameraFormat, error) {
	if d.closed {
		return camera.CameraFormat{}, ErrDeviceClosed
	}
	return d.format, nil
}

// SetFormat implements camera.Device.
func (d *Device) SetFormat(format camera.CameraFormat) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	d.applyFormat(format)
	return nil
}

// Resolution implements camera.Device.
func (d *Device) Resolution() (camera.Resolution, error) {
	format, err := d.Format()
	return format.Resolution, err
}

// SetResolution implements camera.Device.
func (d *Device) SetResolution(res camera.Resolution) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	format := d.format
	format.Resolution = res
	d.applyFormat(format)
	return nil
}

// FrameRate implements camera.Device.
func (d *Device) FrameRate() (int, error) {
	format, err := d.Format()
	return format.FrameRate, err
}

// SetFrameRate implements camera.Device.
func (d *Device) SetFrameRate(fps int) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	format := d.format
	format.FrameRate = fps
	d.applyFormat(format)
	return nil
}

// Controls implements camera.Device.
func (d *Device) Controls() ([]camera.ControlID, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	ids := make([]camera.ControlID, 0, len(controlProps))
	for id := range controlProps {
		ids = append(ids, id)
	}
	return ids, nil
}

// Control implements camera.Device.
func (d *Device) Control(id camera.ControlID) (camera.ControlValue, error) {
	if err := d.ensureOpen(); err != nil {
		return 0, err
	}
	prop, ok := controlProps[id]
	if !ok {
		return 0, camera.ErrControlUnsupported
	}
	return camera.ControlValue(d.cap.Get(prop)), nil
}

// SetControl implements camera.Device.
func (d *Device) SetControl(id camera.ControlID, value camera.ControlValue) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	prop, ok := controlProps[id]
	if !ok {
		return camera.ErrControlUnsupported
	}
	d.cap.Set(prop, float64(value))
	return nil
}

// OpenStream implements camera.Device. After CloseStream it reopens the
// capture handle and re-applies the previously negotiated format.
func (d *Device) OpenStream() error {
	if d.closed {
		return ErrDeviceClosed
	}
	if d.open {
		return nil
	}
	return d.openCapture(d.format)
}

// CloseStream implements camera.Device. The capture handle is released
// so other processes can grab the camera; the device stays reusable.
func (d *Device) CloseStream() error {
	if !d.open {
		return nil
	}
	d.open = false
	if d.cap != nil {
		err := d.cap.Close()
		d.cap = nil
		if err != nil {
			return fmt.Errorf("opencv: close capture: %w", err)
		}
	}
	return nil
}

// IsStreamOpen implements camera.Device.
func (d *Device) IsStreamOpen() bool {
	return d.open && !d.closed
}

// CaptureFrame implements camera.Device. Blocks until the driver delivers
// the next frame.
func (d *Device) CaptureFrame() (camera.Frame, error) {
	if err := d.ensureOpen(); err != nil {
		return camera.Frame{}, err
	}
	if ok := d.cap.Read(&d.mat); !ok || d.mat.Empty() {
		return camera.Frame{}, ErrReadFailed
	}

	res := camera.Resolution{Width: d.mat.Cols(), Height: d.mat.Rows()}
	frame := camera.Frame{
		Resolution: res,
		Format:     d.format.FrameFormat,
		Timestamp:  time.Now(),
	}

	if d.format.FrameFormat == camera.FormatMJPEG {
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, d.mat)
		if err != nil {
			return camera.Frame{}, fmt.Errorf("opencv: encode jpeg: %w", err)
		}
		frame.Data = append([]byte(nil), buf.GetBytes()...)
		buf.Close()
		return frame, nil
	}

	frame.Data = d.mat.ToBytes()
	return frame, nil
}

// Close implements camera.Device.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.CloseStream()
	if merr := d.mat.Close(); merr != nil && err == nil {
		err = merr
	}
	return err
}

func (d *Device) ensureOpen() error {
	if d.closed {
		return ErrDeviceClosed
	}
	if !d.open || d.cap == nil {
		return ErrStreamNotOpen
	}
	return nil
}

// fourcc packs a 4-character code the way OpenCV expects it.
func fourcc(code string) float64 {
	if len(code) != 4 {
		return 0
	}
	return float64(uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24)
}
