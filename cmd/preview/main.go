package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-camera/internal/config"
	"github.com/teslashibe/go-camera/internal/log"
	"github.com/teslashibe/go-camera/pkg/camera"
	"github.com/teslashibe/go-camera/pkg/camera/opencv"
	"github.com/teslashibe/go-camera/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	device := flag.Int("device", -1, "Capture device index (overrides config)")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	preset := flag.String("preset", "", "Named capture format (overrides config resolution)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *device >= 0 {
		cfg.Camera.Device = *device
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
	}

	log.Init(cfg.LogLevel)

	format := camera.CameraFormat{
		Resolution: camera.Resolution{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
		},
		FrameFormat: camera.FrameFormat(cfg.Camera.Format),
		FrameRate:   cfg.Camera.FrameRate,
	}
	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			fmt.Fprintf(os.Stderr, "unknown preset %q (have: %v)\n", *preset, camera.PresetNames())
			os.Exit(1)
		}
		format = *p
	}

	dev, err := opencv.Open(cfg.Camera.Device, format)
	if err != nil {
		log.Error("failed to open capture device", "device", cfg.Camera.Device, "err", err)
		os.Exit(1)
	}

	cam, err := camera.New(dev, nil)
	if err != nil {
		log.Error("failed to start camera", "err", err)
		dev.Close()
		os.Exit(1)
	}
	defer cam.Close()

	negotiated, _ := cam.Format()
	fmt.Printf("📹 Camera %d streaming at %s\n", cfg.Camera.Device, negotiated)
	fmt.Printf("🌐 Preview: http://localhost%s/stream\n", cfg.Web.Listen)

	server := web.NewServer(cfg.Web.Listen, cam)
	cam.SetCallback(server.PublishFrame)

	// Handle Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		if err := server.Shutdown(); err != nil {
			log.Error("server shutdown failed", "err", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Error("preview server failed", "err", err)
		os.Exit(1)
	}
}
