// Package camera provides callback-driven frame delivery on top of a
// synchronous, blocking capture device.
//
// A CallbackCamera owns one background worker goroutine that repeatedly
// pulls frames from the device, keeps a "last observed frame" cache and
// invokes a user callback that can be hot-swapped at any time. Control
// operations (format, resolution, frame rate, named controls) are safe to
// call from any goroutine while capture is running; they serialize with
// the worker on the device lock.
//
// The device itself is an external collaborator behind the Device
// interface. The opencv subpackage binds it to an OpenCV VideoCapture;
// MockDevice in this package is an in-memory implementation for tests and
// for consumers who bring their own frame source.
//
// Minimal usage:
//
//	dev, err := opencv.Open(0, camera.CameraFormat{
//		Resolution:  camera.Resolution{Width: 640, Height: 480},
//		FrameFormat: camera.FormatMJPEG,
//		FrameRate:   30,
//	})
//	if err != nil {
//		return err
//	}
//	cam, err := camera.New(dev, func(f camera.Frame) {
//		// Runs on the capture worker; keep it quick.
//	})
//	if err != nil {
//		return err
//	}
//	defer cam.Close()
package camera
