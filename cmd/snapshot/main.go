package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/teslashibe/go-camera/internal/log"
	"github.com/teslashibe/go-camera/pkg/camera"
	"github.com/teslashibe/go-camera/pkg/camera/opencv"
)

func main() {
	device := flag.Int("device", 0, "Capture device index")
	width := flag.Int("width", 640, "Requested frame width")
	height := flag.Int("height", 480, "Requested frame height")
	warmup := flag.Int("warmup", 5, "Frames to discard while the sensor settles")
	out := flag.String("out", "snapshot.jpg", "Output file")
	flag.Parse()

	log.Init("info")

	format := camera.CameraFormat{
		Resolution:  camera.Resolution{Width: *width, Height: *height},
		FrameFormat: camera.FormatMJPEG,
		FrameRate:   30,
	}

	dev, err := opencv.Open(*device, format)
	if err != nil {
		log.Error("failed to open capture device", "device", *device, "err", err)
		os.Exit(1)
	}

	cam, err := camera.New(dev, nil)
	if err != nil {
		log.Error("failed to start camera", "err", err)
		dev.Close()
		os.Exit(1)
	}
	defer cam.Close()

	// Auto-exposure needs a few frames before the image is usable.
	var frame camera.Frame
	for i := 0; i <= *warmup; i++ {
		frame, err = cam.PollFrame()
		if err != nil {
			log.Error("capture failed", "err", err)
			os.Exit(1)
		}
	}

	if err := os.WriteFile(*out, frame.Data, 0o644); err != nil {
		log.Error("failed to write snapshot", "path", *out, "err", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Saved %s frame (%d bytes) to %s\n", frame.Resolution, len(frame.Data), *out)
}
