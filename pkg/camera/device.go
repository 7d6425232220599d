package camera

// Device is a synchronous, blocking capture device. Implementations live
// in backend subpackages (see opencv) or behind the caller's own driver.
//
// Device implementations do not need to be safe for concurrent use: the
// facade serializes every call on a single lock, so at most one goroutine
// is inside the device at any time. A CaptureFrame that blocks forever
// will block the capture worker and any competing PollFrame caller; the
// facade imposes no timeout of its own.
type Device interface {
	// Info returns the device identity. Must not fail once the device is
	// constructed.
	Info() DeviceInfo

	// Format returns the currently negotiated capture format.
	Format() (CameraFormat, error)

	// SetFormat renegotiates resolution, pixel format and frame rate in
	// one call. Backends may clamp to the nearest supported values.
	SetFormat(format CameraFormat) error

	// Resolution returns the current capture resolution.
	Resolution() (Resolution, error)

	// SetResolution changes the capture resolution, keeping the pixel
	// format and frame rate.
	SetResolution(res Resolution) error

	// FrameRate returns the current frame rate in frames per second.
	FrameRate() (int, error)

	// SetFrameRate changes the capture frame rate.
	SetFrameRate(fps int) error

	// Controls lists the control IDs this device supports.
	Controls() ([]ControlID, error)

	// Control reads the current value of a control.
	Control(id ControlID) (ControlValue, error)

	// SetControl writes a control value.
	SetControl(id ControlID, value ControlValue) error

	// OpenStream prepares the device to produce frames. Calling it on an
	// already open stream is an error; callers should check IsStreamOpen.
	OpenStream() error

	// CloseStream stops frame production but keeps the device usable;
	// OpenStream may be called again afterwards.
	CloseStream() error

	// IsStreamOpen reports whether the stream is currently open.
	IsStreamOpen() bool

	// CaptureFrame blocks until one frame is available and returns it.
	// The returned frame's Data must be a buffer the caller may keep.
	CaptureFrame() (Frame, error)

	// Close releases the device. The device is unusable afterwards.
	Close() error
}
