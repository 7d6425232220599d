package camera

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// FrameCallback receives each captured frame. It runs synchronously on
// the capture worker goroutine: a slow callback directly throttles the
// capture rate. Callers who need heavy processing should hand the frame
// off to their own goroutine or channel inside the callback.
type FrameCallback func(Frame)

// captureRetryDelay is slept after a failed capture so a closed or faulty
// stream does not spin the worker at 100% CPU.
const captureRetryDelay = 5 * time.Millisecond

// CallbackCamera runs a blocking Device on a dedicated background
// goroutine and delivers frames through a hot-swappable callback.
//
// Three pieces of shared state are each guarded by their own mutex: the
// device, the last-frame cache and the callback slot. No two of them are
// ever held at the same time, so reading LastFrame never waits on a
// capture, and swapping the callback never waits on a control call.
//
// Control-surface methods (format, resolution, controls, PollFrame)
// serialize with the worker on the device lock, so device operations are
// totally ordered.
type CallbackCamera struct {
	// Device, exclusively locked for the duration of any single
	// capture or control call.
	deviceMu sync.Mutex
	device   Device

	// Callback slot. Replacement and invocation exclude each other.
	cbMu sync.Mutex
	cb   FrameCallback

	// Last-frame cache. Holds a sentinel until the first capture.
	frameMu   sync.Mutex
	lastFrame Frame

	// Last asynchronous error (callback panics).
	errMu   sync.Mutex
	lastErr error

	seq atomic.Uint64

	// Worker lifecycle. The stop flag is one-way per worker generation;
	// OpenStream after StopStream spawns a fresh worker with a fresh flag
	// and a fresh done channel, closed when that worker exits.
	runMu   sync.Mutex
	running bool
	stop    *atomic.Bool
	done    chan struct{}
	closed  bool
}

// New wraps an already constructed Device in a CallbackCamera, installs
// the initial callback (which may be nil), opens the stream and starts
// the capture worker.
//
// If the stream cannot be opened the error is returned and no facade is
// created; the caller still owns the device.
func New(dev Device, cb FrameCallback) (*CallbackCamera, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	c := &CallbackCamera{
		device:    dev,
		cb:        cb,
		lastFrame: sentinelFrame(Resolution{}, FormatGray),
	}
	if err := c.OpenStream(); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenStream ensures the device is producing frames and that the capture
// worker is running. It is idempotent: calling it on a streaming camera
// is a no-op. After StopStream it reopens the stream and spawns a new
// worker.
func (c *CallbackCamera) OpenStream() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.closed {
		return ErrCameraClosed
	}

	// A previous worker may still be draining its last iteration after
	// StopStream. Let it exit before deciding whether to spawn.
	for c.running && c.stop.Load() {
		done := c.done
		c.runMu.Unlock()
		<-done
		c.runMu.Lock()
		if c.closed {
			return ErrCameraClosed
		}
	}

	c.deviceMu.Lock()
	var err error
	if !c.device.IsStreamOpen() {
		err = c.device.OpenStream()
	}
	c.deviceMu.Unlock()
	if err != nil {
		return fmt.Errorf("camera: open stream: %w", err)
	}

	if !c.running {
		stop := &atomic.Bool{}
		done := make(chan struct{})
		c.stop = stop
		c.done = done
		c.running = true
		go c.captureLoop(stop, done)
	}
	return nil
}

// StopStream closes the device stream and signals the capture worker to
// exit. The worker finishes at most one more capture-and-callback cycle
// after StopStream returns. If closing the stream fails, the signal is
// set anyway and a ShutdownError is returned.
func (c *CallbackCamera) StopStream() error {
	c.runMu.Lock()
	if c.stop != nil {
		c.stop.Store(true)
	}
	c.runMu.Unlock()

	c.deviceMu.Lock()
	var err error
	if c.device.IsStreamOpen() {
		err = c.device.CloseStream()
	}
	c.deviceMu.Unlock()
	if err != nil {
		return &ShutdownError{Err: err}
	}
	return nil
}

// Close stops the stream, waits for the capture worker to exit and
// releases the device. Safe to call multiple times; only the first call
// does any work.
func (c *CallbackCamera) Close() error {
	c.runMu.Lock()
	if c.closed {
		c.runMu.Unlock()
		return nil
	}
	c.closed = true
	done := c.done
	c.runMu.Unlock()

	err := c.StopStream()
	if done != nil {
		<-done
	}

	c.deviceMu.Lock()
	cerr := c.device.Close()
	c.deviceMu.Unlock()
	if cerr != nil && err == nil {
		err = &ShutdownError{Err: cerr}
	}
	return err
}

// SetDevice swaps the capture source, which is how a backend index
// change looks here: the caller constructs the replacement device and
// the facade re-points at it under the device lock. The previous device
// is closed. If the old stream was open, the new device's stream is
// opened so the worker keeps delivering frames; the last-frame cache
// resets to a sentinel shaped for the new device's format.
func (c *CallbackCamera) SetDevice(dev Device) error {
	if dev == nil {
		return ErrNilDevice
	}
	c.runMu.Lock()
	if c.closed {
		c.runMu.Unlock()
		return ErrCameraClosed
	}
	c.runMu.Unlock()

	c.deviceMu.Lock()
	wasOpen := c.device.IsStreamOpen()
	c.device.Close()
	c.device = dev
	var err error
	if wasOpen && !dev.IsStreamOpen() {
		err = dev.OpenStream()
	}
	var format CameraFormat
	if err == nil {
		format, _ = dev.Format()
	}
	c.deviceMu.Unlock()
	if err != nil {
		return &PropertyError{Op: OpSet, Property: "device", Err: err}
	}
	c.resetCache(format.Resolution, format.FrameFormat)
	return nil
}

// SetCallback swaps the frame callback. The swap is mutually exclusive
// with invocation: once SetCallback returns, the previous callback is
// never invoked again. A nil callback uninstalls frame delivery; capture
// and the last-frame cache keep running.
func (c *CallbackCamera) SetCallback(cb FrameCallback) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

// PollFrame performs one blocking capture on the calling goroutine,
// competing with the capture worker for the device. On success the
// last-frame cache is updated and the frame is returned to the caller.
// Failures are returned as a *CaptureError.
func (c *CallbackCamera) PollFrame() (Frame, error) {
	frame, err := c.captureOnce()
	if err != nil {
		return Frame{}, err
	}
	c.storeFrame(frame.Clone())
	return frame, nil
}

// LastFrame returns an independent copy of the most recent successfully
// captured frame. Before the first capture, and right after a resolution
// or format change, it returns a sentinel (IsSentinel reports true)
// shaped for the active format.
func (c *CallbackCamera) LastFrame() Frame {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.lastFrame.Clone()
}

// LastError returns the most recent asynchronous error recorded by the
// capture worker (currently: a recovered callback panic), or nil.
func (c *CallbackCamera) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Info returns the device identity.
func (c *CallbackCamera) Info() DeviceInfo {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()
	return c.device.Info()
}

// Index returns the backend device index.
func (c *CallbackCamera) Index() int {
	return c.Info().Index
}

// IsStreamOpen reports whether the device stream is open.
func (c *CallbackCamera) IsStreamOpen() bool {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()
	return c.device.IsStreamOpen()
}

// Format returns the current camera format.
func (c *CallbackCamera) Format() (CameraFormat, error) {
	c.deviceMu.Lock()
	format, err := c.device.Format()
	c.deviceMu.Unlock()
	if err != nil {
		return CameraFormat{}, &PropertyError{Op: OpGet, Property: "camera format", Err: err}
	}
	return format, nil
}

// SetFormat renegotiates the full camera format. On success the
// last-frame cache is reset to a sentinel shaped for the new format: the
// previous cached frame is no longer format-compatible.
func (c *CallbackCamera) SetFormat(format CameraFormat) error {
	c.deviceMu.Lock()
	err := c.device.SetFormat(format)
	c.deviceMu.Unlock()
	if err != nil {
		return &PropertyError{Op: OpSet, Property: "camera format", Value: format.String(), Err: err}
	}
	c.resetCache(format.Resolution, format.FrameFormat)
	return nil
}

// Resolution returns the current capture resolution.
func (c *CallbackCamera) Resolution() (Resolution, error) {
	c.deviceMu.Lock()
	res, err := c.device.Resolution()
	c.deviceMu.Unlock()
	if err != nil {
		return Resolution{}, &PropertyError{Op: OpGet, Property: "resolution", Err: err}
	}
	return res, nil
}

// SetResolution changes the capture resolution and resets the last-frame
// cache to a sentinel at the new resolution.
func (c *CallbackCamera) SetResolution(res Resolution) error {
	c.deviceMu.Lock()
	err := c.device.SetResolution(res)
	var format CameraFormat
	if err == nil {
		format, _ = c.device.Format()
	}
	c.deviceMu.Unlock()
	if err != nil {
		return &PropertyError{Op: OpSet, Property: "resolution", Value: res.String(), Err: err}
	}

	tag := format.FrameFormat
	if tag == "" {
		c.frameMu.Lock()
		tag = c.lastFrame.Format
		c.frameMu.Unlock()
	}
	c.resetCache(res, tag)
	return nil
}

// FrameRate returns the current frame rate.
func (c *CallbackCamera) FrameRate() (int, error) {
	c.deviceMu.Lock()
	fps, err := c.device.FrameRate()
	c.deviceMu.Unlock()
	if err != nil {
		return 0, &PropertyError{Op: OpGet, Property: "frame rate", Err: err}
	}
	return fps, nil
}

// SetFrameRate changes the capture frame rate. The cached frame stays
// valid: frame shape is unaffected.
func (c *CallbackCamera) SetFrameRate(fps int) error {
	c.deviceMu.Lock()
	err := c.device.SetFrameRate(fps)
	c.deviceMu.Unlock()
	if err != nil {
		return &PropertyError{Op: OpSet, Property: "frame rate", Value: fmt.Sprintf("%d", fps), Err: err}
	}
	return nil
}

// FrameFormat returns the current pixel format tag.
func (c *CallbackCamera) FrameFormat() (FrameFormat, error) {
	format, err := c.Format()
	if err != nil {
		return "", &PropertyError{Op: OpGet, Property: "frame format", Err: err}
	}
	return format.FrameFormat, nil
}

// SetFrameFormat changes only the pixel format, keeping resolution and
// frame rate, and resets the cache sentinel to the new format.
func (c *CallbackCamera) SetFrameFormat(tag FrameFormat) error {
	c.deviceMu.Lock()
	format, err := c.device.Format()
	if err == nil {
		format.FrameFormat = tag
		err = c.device.SetFormat(format)
	}
	c.deviceMu.Unlock()
	if err != nil {
		return &PropertyError{Op: OpSet, Property: "frame format", Value: string(tag), Err: err}
	}
	c.resetCache(format.Resolution, tag)
	return nil
}

// Controls lists the control IDs the device supports.
func (c *CallbackCamera) Controls() ([]ControlID, error) {
	c.deviceMu.Lock()
	ids, err := c.device.Controls()
	c.deviceMu.Unlock()
	if err != nil {
		return nil, &PropertyError{Op: OpGet, Property: "supported controls", Err: err}
	}
	return ids, nil
}

// Control reads the current value of a device control.
func (c *CallbackCamera) Control(id ControlID) (ControlValue, error) {
	c.deviceMu.Lock()
	value, err := c.device.Control(id)
	c.deviceMu.Unlock()
	if err != nil {
		return 0, &PropertyError{Op: OpGet, Property: string(id), Err: err}
	}
	return value, nil
}

// SetControl writes a device control value.
func (c *CallbackCamera) SetControl(id ControlID, value ControlValue) error {
	c.deviceMu.Lock()
	err := c.device.SetControl(id, value)
	c.deviceMu.Unlock()
	if err != nil {
		return &PropertyError{Op: OpSet, Property: string(id), Value: fmt.Sprintf("%v", value), Err: err}
	}
	return nil
}

// captureLoop is the background worker. Each iteration: capture one frame
// under the device lock, update the cache, invoke the callback with a
// clone, then check the termination signal. A failed capture skips the
// update and callback but never kills the loop.
func (c *CallbackCamera) captureLoop(stop *atomic.Bool, done chan struct{}) {
	// done closes only after running is cleared, so an OpenStream waiting
	// on this generation observes the final state.
	defer close(done)
	defer func() {
		c.runMu.Lock()
		c.running = false
		c.runMu.Unlock()
	}()

	for {
		frame, err := c.captureOnce()
		if err == nil {
			// Cache update strictly precedes callback invocation.
			c.storeFrame(frame)
			c.invokeCallback(frame.Clone())
		}

		if stop.Load() {
			return
		}

		if err != nil {
			time.Sleep(captureRetryDelay)
		} else {
			runtime.Gosched()
		}
	}
}

// captureOnce performs a single capture under the device lock and stamps
// the frame with a sequence number.
func (c *CallbackCamera) captureOnce() (Frame, error) {
	c.deviceMu.Lock()
	frame, err := c.device.CaptureFrame()
	c.deviceMu.Unlock()
	if err != nil {
		return Frame{}, &CaptureError{Err: err}
	}
	frame.Seq = c.seq.Add(1)
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	return frame, nil
}

// storeFrame keeps the cache monotonic in sequence numbers: a poll that
// loses the race against the worker cannot roll the cache back to an
// older frame.
func (c *CallbackCamera) storeFrame(f Frame) {
	c.frameMu.Lock()
	if f.Seq >= c.lastFrame.Seq {
		c.lastFrame = f
	}
	c.frameMu.Unlock()
}

func (c *CallbackCamera) resetCache(res Resolution, format FrameFormat) {
	c.frameMu.Lock()
	c.lastFrame = sentinelFrame(res, format)
	c.frameMu.Unlock()
}

// invokeCallback runs the installed callback under the slot lock, so an
// invocation uses either the old or the new callback, never a mix. A
// panicking callback is recovered and recorded instead of taking down
// the worker.
func (c *CallbackCamera) invokeCallback(frame Frame) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.recordError(&CallbackPanicError{Value: r})
		}
	}()
	c.cb(frame)
}

func (c *CallbackCamera) recordError(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}
