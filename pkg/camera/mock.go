package camera

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Mock device errors.
var (
	ErrMockStreamClosed = errors.New("camera: mock stream not open")
	ErrMockClosed       = errors.New("camera: mock device closed")
)

// MockDevice implements Device in memory, for tests and for consumers who
// bring their own frame source. Behavior can be customized via function
// fields; all are optional, and all must be assigned before the device is
// handed to a CallbackCamera or captured from. Each is snapshotted under
// the internal mutex before it runs.
type MockDevice struct {
	// CaptureFunc overrides frame production. n is the 1-based capture
	// attempt number. If nil, CaptureFrame returns a small frame at the
	// current format whose payload is filled with the attempt number.
	CaptureFunc func(n int) (Frame, error)

	// CaptureDelay simulates a blocking device by sleeping before each
	// capture completes.
	CaptureDelay time.Duration

	// SetFormatFunc, SetResolutionFunc and SetControlFunc intercept the
	// corresponding setters. If nil, the setter stores the value.
	SetFormatFunc     func(CameraFormat) error
	SetResolutionFunc func(Resolution) error
	SetControlFunc    func(ControlID, ControlValue) error

	mu         sync.Mutex
	info       DeviceInfo
	format     CameraFormat
	controls   map[ControlID]ControlValue
	streamOpen bool
	closed     bool
	attempts   int
	captures   int

	inFlight   atomic.Int32
	violations atomic.Int32
}

// NewMockDevice creates a mock device at the given format with a small
// default control set.
func NewMockDevice(format CameraFormat) *MockDevice {
	return &MockDevice{
		info:   DeviceInfo{Index: 0, Name: "mock", Description: "in-memory mock device"},
		format: format,
		controls: map[ControlID]ControlValue{
			ControlBrightness: 50,
			ControlContrast:   32,
			ControlGain:       0,
		},
	}
}

// Info implements Device.
func (m *MockDevice) Info() DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Format implements Device.
func (m *MockDevice) Format() (CameraFormat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return CameraFormat{}, ErrMockClosed
	}
	return m.format, nil
}

// SetFormat implements Device.
func (m *MockDevice) SetFormat(format CameraFormat) error {
	m.mu.Lock()
	if fn := m.SetFormatFunc; fn != nil {
		m.mu.Unlock()
		return fn(format)
	}
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	m.format = format
	return nil
}

// Resolution implements Device.
func (m *MockDevice) Resolution() (Resolution, error) {
	format, err := m.Format()
	return format.Resolution, err
}

// SetResolution implements Device.
func (m *MockDevice) SetResolution(res Resolution) error {
	m.mu.Lock()
	if fn := m.SetResolutionFunc; fn != nil {
		m.mu.Unlock()
		return fn(res)
	}
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	m.format.Resolution = res
	return nil
}

// FrameRate implements Device.
func (m *MockDevice) FrameRate() (int, error) {
	format, err := m.Format()
	return format.FrameRate, err
}

// SetFrameRate implements Device.
func (m *MockDevice) SetFrameRate(fps int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	m.format.FrameRate = fps
	return nil
}

// Controls implements Device. IDs are returned sorted for stable output.
func (m *MockDevice) Controls() ([]ControlID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMockClosed
	}
	ids := make([]ControlID, 0, len(m.controls))
	for id := range m.controls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Control implements Device.
func (m *MockDevice) Control(id ControlID) (ControlValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrMockClosed
	}
	value, ok := m.controls[id]
	if !ok {
		return 0, ErrControlUnsupported
	}
	return value, nil
}

// SetControl implements Device.
func (m *MockDevice) SetControl(id ControlID, value ControlValue) error {
	m.mu.Lock()
	if fn := m.SetControlFunc; fn != nil {
		m.mu.Unlock()
		return fn(id, value)
	}
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	if _, ok := m.controls[id]; !ok {
		return ErrControlUnsupported
	}
	m.controls[id] = value
	return nil
}

// OpenStream implements Device.
func (m *MockDevice) OpenStream() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	m.streamOpen = true
	return nil
}

// CloseStream implements Device.
func (m *MockDevice) CloseStream() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamOpen = false
	return nil
}

// IsStreamOpen implements Device.
func (m *MockDevice) IsStreamOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamOpen
}

// CaptureFrame implements Device. Concurrent entry is tracked: the facade
// promises to hold its device lock for the whole call, so more than one
// goroutine in here at once is a serialization bug (see LockViolations).
func (m *MockDevice) CaptureFrame() (Frame, error) {
	if m.inFlight.Add(1) != 1 {
		m.violations.Add(1)
	}
	defer m.inFlight.Add(-1)

	if m.CaptureDelay > 0 {
		time.Sleep(m.CaptureDelay)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Frame{}, ErrMockClosed
	}
	if !m.streamOpen {
		m.mu.Unlock()
		return Frame{}, ErrMockStreamClosed
	}
	m.attempts++
	n := m.attempts
	format := m.format
	fn := m.CaptureFunc
	m.mu.Unlock()

	// CaptureFunc runs outside the internal mutex, like a real blocking
	// device call: it blocks only the caller holding the facade's device
	// lock, not property reads against the mock itself.
	var frame Frame
	if fn != nil {
		var err error
		frame, err = fn(n)
		if err != nil {
			return Frame{}, err
		}
	} else {
		data := make([]byte, 16)
		for i := range data {
			data[i] = byte(n)
		}
		frame = Frame{
			Resolution: format.Resolution,
			Format:     format.FrameFormat,
			Data:       data,
			Timestamp:  time.Now(),
		}
	}

	m.mu.Lock()
	m.captures++
	m.mu.Unlock()
	return frame, nil
}

// Close implements Device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.streamOpen = false
	return nil
}

// CaptureCount returns the number of successful captures.
func (m *MockDevice) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// CaptureAttempts returns the number of capture attempts, including
// failed ones.
func (m *MockDevice) CaptureAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LockViolations returns how many times CaptureFrame was entered while
// another capture was already in flight. Always zero when the device is
// driven through a CallbackCamera.
func (m *MockDevice) LockViolations() int {
	return int(m.violations.Load())
}
