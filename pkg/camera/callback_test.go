package camera

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func vgaFormat() CameraFormat {
	return CameraFormat{
		Resolution:  Resolution{Width: 640, Height: 480},
		FrameFormat: FormatYUYV,
		FrameRate:   30,
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestNew_NilDevice(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNilDevice) {
		t.Fatalf("got %v, want ErrNilDevice", err)
	}
}

func TestNew_OpenStreamFailure(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	dev.Close()

	cam, err := New(dev, nil)
	if err == nil {
		cam.Close()
		t.Fatal("expected error from closed device, got nil")
	}
	if !errors.Is(err, ErrMockClosed) {
		t.Fatalf("got %v, want wrapped ErrMockClosed", err)
	}
}

func TestCallbackCamera_DeliversFrames(t *testing.T) {
	dev := NewMockDevice(vgaFormat())

	var count atomic.Int64
	cam, err := New(dev, func(f Frame) {
		if f.IsSentinel() {
			t.Error("callback received a sentinel frame")
		}
		count.Add(1)
	})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return count.Load() >= 5 })

	last := cam.LastFrame()
	if last.IsSentinel() {
		t.Error("LastFrame is still the sentinel after successful captures")
	}
	want := Resolution{Width: 640, Height: 480}
	if last.Resolution != want {
		t.Errorf("LastFrame resolution: got %s, want %s", last.Resolution, want)
	}

	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}

	// Every successful capture invokes the callback exactly once, so the
	// counter and the device's success count agree once the worker exits.
	if got, want := count.Load(), int64(dev.CaptureCount()); got != want {
		t.Errorf("callback invocations: got %d, want %d (one per capture)", got, want)
	}
}

func TestSetCallback_FencesOldCallback(t *testing.T) {
	dev := NewMockDevice(vgaFormat())

	var c1, c2 atomic.Int64
	cam, err := New(dev, func(Frame) { c1.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	waitFor(t, time.Second, func() bool { return c1.Load() >= 3 })

	// SetCallback excludes in-flight invocations, so once it returns the
	// old callback's counter is frozen.
	cam.SetCallback(func(Frame) { c2.Add(1) })
	frozen := c1.Load()

	waitFor(t, time.Second, func() bool { return c2.Load() >= 3 })
	if got := c1.Load(); got != frozen {
		t.Errorf("old callback ran %d more times after SetCallback returned", got-frozen)
	}
}

func TestLastFrame_SentinelBeforeFirstCapture(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	release := make(chan struct{})
	dev.CaptureFunc = func(n int) (Frame, error) {
		<-release
		return Frame{Resolution: Resolution{640, 480}, Format: FormatYUYV, Data: []byte{1}}, nil
	}

	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}

	last := cam.LastFrame()
	if !last.IsSentinel() {
		t.Error("LastFrame before first capture is not the sentinel")
	}
	if !last.Resolution.IsZero() {
		t.Errorf("initial sentinel resolution: got %s, want 0x0", last.Resolution)
	}

	close(release)
	waitFor(t, time.Second, func() bool { return !cam.LastFrame().IsSentinel() })
	cam.Close()
}

func TestCallbackCamera_SurvivesCaptureFailure(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	dev.CaptureFunc = func(n int) (Frame, error) {
		if n >= 2 && n <= 4 {
			return Frame{}, fmt.Errorf("transient device fault %d", n)
		}
		return Frame{Resolution: Resolution{640, 480}, Format: FormatYUYV, Data: []byte{byte(n)}}, nil
	}

	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	// Three failed attempts sit between the first and second success; the
	// worker must ride through all of them.
	waitFor(t, time.Second, func() bool { return dev.CaptureCount() >= 3 })
	if cam.LastFrame().IsSentinel() {
		t.Error("LastFrame is the sentinel despite successful captures")
	}
}

func TestStopStream_HaltsWorker(t *testing.T) {
	dev := NewMockDevice(vgaFormat())

	var count atomic.Int64
	cam, err := New(dev, func(Frame) { count.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	waitFor(t, time.Second, func() bool { return count.Load() >= 2 })

	if err := cam.StopStream(); err != nil {
		t.Fatal(err)
	}
	atReturn := count.Load()

	// The worker may finish the cycle it was in, but no more than that.
	time.Sleep(50 * time.Millisecond)
	afterwards := count.Load()
	if afterwards-atReturn > 1 {
		t.Errorf("%d callback cycles after StopStream returned, want at most 1", afterwards-atReturn)
	}
	time.Sleep(50 * time.Millisecond)
	if got := count.Load(); got != afterwards {
		t.Errorf("callbacks still firing after worker should have exited (%d -> %d)", afterwards, got)
	}
}

func TestOpenStream_RestartsAfterStop(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	// Idempotent while streaming.
	if err := cam.OpenStream(); err != nil {
		t.Fatalf("OpenStream while streaming: %v", err)
	}

	waitFor(t, time.Second, func() bool { return dev.CaptureCount() >= 1 })
	if err := cam.StopStream(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return !cam.IsStreamOpen() })

	if err := cam.OpenStream(); err != nil {
		t.Fatalf("OpenStream after StopStream: %v", err)
	}
	before := dev.CaptureCount()
	waitFor(t, time.Second, func() bool { return dev.CaptureCount() > before+2 })
}

func TestSetResolution_ResetsCacheToSentinel(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	var fail atomic.Bool
	dev.CaptureFunc = func(n int) (Frame, error) {
		if fail.Load() {
			return Frame{}, errors.New("paused")
		}
		res, _ := dev.Resolution()
		return Frame{Resolution: res, Format: FormatYUYV, Data: []byte{byte(n)}}, nil
	}

	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	waitFor(t, time.Second, func() bool { return !cam.LastFrame().IsSentinel() })

	// Park the worker on capture failures so no fresh frame can race the
	// assertions below.
	fail.Store(true)
	attempts := dev.CaptureAttempts()
	waitFor(t, time.Second, func() bool { return dev.CaptureAttempts() > attempts })

	want := Resolution{Width: 320, Height: 240}
	if err := cam.SetResolution(want); err != nil {
		t.Fatal(err)
	}

	last := cam.LastFrame()
	if !last.IsSentinel() {
		t.Error("LastFrame after SetResolution is not the sentinel")
	}
	if last.Resolution != want {
		t.Errorf("sentinel resolution: got %s, want %s (stale frame shape?)", last.Resolution, want)
	}
	if last.Format != FormatYUYV {
		t.Errorf("sentinel format: got %s, want %s", last.Format, FormatYUYV)
	}

	// New captures arrive at the new resolution.
	fail.Store(false)
	waitFor(t, time.Second, func() bool { return !cam.LastFrame().IsSentinel() })
	if got := cam.LastFrame().Resolution; got != want {
		t.Errorf("post-change frame resolution: got %s, want %s", got, want)
	}
}

func TestSetFormat_ResetsCacheToNewFormat(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	waitFor(t, time.Second, func() bool { return !cam.LastFrame().IsSentinel() })

	next := CameraFormat{
		Resolution:  Resolution{Width: 320, Height: 240},
		FrameFormat: FormatMJPEG,
		FrameRate:   15,
	}
	if err := cam.SetFormat(next); err != nil {
		t.Fatal(err)
	}

	// The sentinel is shaped for the new format, never the old one; a
	// fresh frame may already have landed, which is equally acceptable.
	last := cam.LastFrame()
	if last.Resolution != next.Resolution {
		t.Errorf("cache resolution after SetFormat: got %s, want %s", last.Resolution, next.Resolution)
	}
}

func hdFormat() CameraFormat {
	return CameraFormat{
		Resolution:  Resolution{Width: 1280, Height: 720},
		FrameFormat: FormatMJPEG,
		FrameRate:   30,
	}
}

func TestSetDevice_SwapsCaptureSource(t *testing.T) {
	devA := NewMockDevice(vgaFormat())
	cam, err := New(devA, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	waitFor(t, time.Second, func() bool { return !cam.LastFrame().IsSentinel() })

	devB := NewMockDevice(hdFormat())
	if err := cam.SetDevice(devB); err != nil {
		t.Fatal(err)
	}

	// The old device is released and no longer captured.
	if _, err := devA.Format(); !errors.Is(err, ErrMockClosed) {
		t.Errorf("old device not closed after SetDevice: %v", err)
	}
	attemptsA := devA.CaptureAttempts()

	// The stream was open, so frames keep flowing from the new device.
	want := Resolution{Width: 1280, Height: 720}
	waitFor(t, time.Second, func() bool {
		f := cam.LastFrame()
		return !f.IsSentinel() && f.Resolution == want
	})
	if got := devA.CaptureAttempts(); got != attemptsA {
		t.Errorf("old device still captured after swap (%d -> %d)", attemptsA, got)
	}

	format, err := cam.Format()
	if err != nil {
		t.Fatal(err)
	}
	if format.FrameFormat != FormatMJPEG {
		t.Errorf("facade format after swap: got %s, want %s", format.FrameFormat, FormatMJPEG)
	}

	if err := cam.SetDevice(nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("SetDevice(nil): got %v, want ErrNilDevice", err)
	}
}

func TestSetDevice_WhileStoppedResetsCache(t *testing.T) {
	devA := NewMockDevice(vgaFormat())
	cam, err := New(devA, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	waitFor(t, time.Second, func() bool { return !cam.LastFrame().IsSentinel() })
	if err := cam.StopStream(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		before := devA.CaptureAttempts()
		time.Sleep(10 * time.Millisecond)
		return devA.CaptureAttempts() == before
	})

	devB := NewMockDevice(hdFormat())
	if err := cam.SetDevice(devB); err != nil {
		t.Fatal(err)
	}

	// A stopped camera stays stopped across the swap, and the cache holds
	// a sentinel shaped for the new device.
	if cam.IsStreamOpen() {
		t.Error("stream open after swapping onto a stopped camera")
	}
	last := cam.LastFrame()
	if !last.IsSentinel() {
		t.Error("cache not reset to the sentinel after SetDevice")
	}
	if want := (Resolution{Width: 1280, Height: 720}); last.Resolution != want {
		t.Errorf("sentinel resolution: got %s, want %s", last.Resolution, want)
	}
	if last.Format != FormatMJPEG {
		t.Errorf("sentinel format: got %s, want %s", last.Format, FormatMJPEG)
	}

	// OpenStream resumes capture from the replacement device.
	if err := cam.OpenStream(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return devB.CaptureCount() >= 1 })
}

func TestSetDevice_AfterClose(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	cam.Close()

	if err := cam.SetDevice(NewMockDevice(vgaFormat())); !errors.Is(err, ErrCameraClosed) {
		t.Errorf("SetDevice after Close: got %v, want ErrCameraClosed", err)
	}
}

func TestLastFrame_SeqNeverRegresses(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	// Quiesce the worker so the cache is entirely under test control.
	if err := cam.StopStream(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		before := dev.CaptureAttempts()
		time.Sleep(10 * time.Millisecond)
		return dev.CaptureAttempts() == before
	})

	base := cam.LastFrame().Seq
	cam.storeFrame(Frame{Seq: base + 10, Data: []byte{10}})
	cam.storeFrame(Frame{Seq: base + 5, Data: []byte{5}})

	last := cam.LastFrame()
	if last.Seq != base+10 {
		t.Errorf("cache regressed to seq %d, want %d", last.Seq, base+10)
	}
	if last.Data[0] != 10 {
		t.Errorf("cache payload from the older frame: %v", last.Data)
	}
}

func TestPollFrame_Concurrent(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	dev.CaptureDelay = 200 * time.Microsecond

	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	const pollers, polls = 2, 25
	var wg sync.WaitGroup
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < polls; j++ {
				frame, err := cam.PollFrame()
				if err != nil {
					t.Errorf("PollFrame: %v", err)
					return
				}
				if frame.IsSentinel() || frame.Resolution != (Resolution{640, 480}) {
					t.Errorf("corrupted frame: %+v", frame)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := dev.LockViolations(); got != 0 {
		t.Errorf("device entered concurrently %d times", got)
	}
	// Every lock acquisition produced exactly one capture attempt, and
	// with a healthy device every attempt succeeded.
	if dev.CaptureCount() != dev.CaptureAttempts() {
		t.Errorf("captures %d != attempts %d", dev.CaptureCount(), dev.CaptureAttempts())
	}
	if dev.CaptureCount() < pollers*polls {
		t.Errorf("device saw %d captures, want at least %d", dev.CaptureCount(), pollers*polls)
	}
}

func TestPollFrame_UpdatesCache(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	// Halt the worker, then reopen the device stream underneath so the
	// poll path is the only writer left.
	if err := cam.StopStream(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		before := dev.CaptureAttempts()
		time.Sleep(10 * time.Millisecond)
		return dev.CaptureAttempts() == before
	})
	if err := dev.OpenStream(); err != nil {
		t.Fatal(err)
	}

	frame, err := cam.PollFrame()
	if err != nil {
		t.Fatal(err)
	}
	last := cam.LastFrame()
	if last.Seq != frame.Seq {
		t.Errorf("cache seq %d != polled seq %d", last.Seq, frame.Seq)
	}

	// The cache owns its copy: mutating the returned frame must not
	// show up in later reads.
	frame.Data[0] ^= 0xff
	if cam.LastFrame().Data[0] == frame.Data[0] {
		t.Error("cache shares its payload with the polled frame")
	}
}

func TestPollFrame_CaptureError(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	dev.CaptureFunc = func(int) (Frame, error) {
		return Frame{}, errors.New("sensor unplugged")
	}

	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	_, err = cam.PollFrame()
	var capErr *CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("got %T (%v), want *CaptureError", err, err)
	}
	if cam.LastFrame().IsSentinel() != true {
		t.Error("failed poll must not touch the cache")
	}
}

func TestPropertyError_CarriesPropertyAndCause(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cause := errors.New("driver rejected value")
	dev.SetResolutionFunc = func(Resolution) error { return cause }

	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	err = cam.SetResolution(Resolution{Width: 320, Height: 240})
	var propErr *PropertyError
	if !errors.As(err, &propErr) {
		t.Fatalf("got %T (%v), want *PropertyError", err, err)
	}
	if propErr.Op != OpSet || propErr.Property != "resolution" {
		t.Errorf("got op=%q property=%q", propErr.Op, propErr.Property)
	}
	if !errors.Is(err, cause) {
		t.Error("PropertyError does not wrap the device cause")
	}

	// A failed setter leaves the cache alone.
	if got := cam.LastFrame().Resolution; got == (Resolution{320, 240}) {
		t.Error("cache reset despite rejected resolution change")
	}

	_, err = cam.Control(ControlID("bogus"))
	if !errors.As(err, &propErr) {
		t.Fatalf("got %T (%v), want *PropertyError", err, err)
	}
	if !errors.Is(err, ErrControlUnsupported) {
		t.Errorf("control error does not wrap ErrControlUnsupported: %v", err)
	}
}

func TestCallbackPanic_RecoveredAndRecorded(t *testing.T) {
	dev := NewMockDevice(vgaFormat())

	var panicked atomic.Bool
	cam, err := New(dev, func(Frame) {
		if !panicked.Swap(true) {
			panic("callback exploded")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	waitFor(t, time.Second, func() bool { return cam.LastError() != nil })

	var panicErr *CallbackPanicError
	if !errors.As(cam.LastError(), &panicErr) {
		t.Fatalf("got %T, want *CallbackPanicError", cam.LastError())
	}

	// The worker survived the panic and keeps capturing.
	before := dev.CaptureCount()
	waitFor(t, time.Second, func() bool { return dev.CaptureCount() > before+2 })
}

func TestClose_JoinsWorkerAndIsIdempotent(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return dev.CaptureCount() >= 1 })

	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}
	attempts := dev.CaptureAttempts()
	time.Sleep(30 * time.Millisecond)
	if got := dev.CaptureAttempts(); got != attempts {
		t.Errorf("device still being captured after Close (%d -> %d)", attempts, got)
	}

	if err := cam.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := cam.OpenStream(); !errors.Is(err, ErrCameraClosed) {
		t.Errorf("OpenStream after Close: got %v, want ErrCameraClosed", err)
	}
}

func TestCacheUpdatePrecedesCallback(t *testing.T) {
	dev := NewMockDevice(vgaFormat())
	cam, err := New(dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	var checked atomic.Int64
	var stale atomic.Int64
	cam.SetCallback(func(f Frame) {
		// By the time the callback sees a frame, the cache already holds
		// it (or something newer from a concurrent poll).
		if cam.LastFrame().Seq < f.Seq {
			stale.Add(1)
		}
		checked.Add(1)
	})

	waitFor(t, time.Second, func() bool { return checked.Load() >= 10 })
	if got := stale.Load(); got != 0 {
		t.Errorf("callback observed a cache older than its frame %d times", got)
	}
}
