package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/teslashibe/go-camera/pkg/camera"
	"github.com/teslashibe/go-camera/pkg/camera/opencv"
)

func main() {
	device := flag.Int("device", 0, "Capture device index")
	flag.Parse()

	dev, err := opencv.Open(*device, camera.CameraFormat{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open device %d: %v\n", *device, err)
		os.Exit(1)
	}
	defer dev.Close()

	info := dev.Info()
	fmt.Printf("Device:      %s (index %d)\n", info.Name, info.Index)
	fmt.Printf("Description: %s\n", info.Description)

	format, err := dev.Format()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read format: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Format:      %s\n", format)

	ids, err := dev.Controls()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list controls: %v\n", err)
		os.Exit(1)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Println("Controls:")
	for _, id := range ids {
		value, err := dev.Control(id)
		if err != nil {
			continue
		}
		fmt.Printf("  %-18s %g\n", id, float64(value))
	}
}
