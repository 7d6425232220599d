// Package web serves a live camera preview over HTTP: single JPEG
// snapshots, an MJPEG stream, a websocket frame feed, and a small JSON
// API for format and control changes.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-camera/internal/log"
	"github.com/teslashibe/go-camera/pkg/camera"
	"github.com/teslashibe/go-camera/pkg/hub"
)

// Server exposes a CallbackCamera over HTTP and websocket.
type Server struct {
	app  *fiber.App
	addr string
	cam  *camera.CallbackCamera

	// Hubs for websocket broadcast
	frameHub  *hub.Hub
	statusHub *hub.Hub
}

// NewServer builds the preview server around an already streaming camera.
// Wire the camera's callback to PublishFrame to feed the websocket and
// status feeds.
func NewServer(addr string, cam *camera.CallbackCamera) *Server {
	s := &Server{
		addr:      addr,
		cam:       cam,
		frameHub:  hub.New("frames"),
		statusHub: hub.New("status"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-camera preview",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/frame.jpg", s.handleSnapshot)
	app.Get("/stream", s.handleMJPEG)

	api := app.Group("/api")
	api.Get("/info", s.handleInfo)
	api.Get("/config", s.handleGetConfig)
	api.Post("/config", s.handleSetConfig)
	api.Get("/presets", s.handleListPresets)
	api.Get("/controls", s.handleListControls)
	api.Post("/controls/:id", s.handleSetControl)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start runs the hubs and blocks serving HTTP on the configured address.
func (s *Server) Start() error {
	go s.frameHub.Run()
	go s.statusHub.Run()

	log.Info("preview server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// PublishFrame pushes a freshly captured frame to all websocket clients.
// It matches camera.FrameCallback so it can be handed straight to
// CallbackCamera.SetCallback. Only JPEG payloads are forwarded; raw
// formats still refresh the status feed.
func (s *Server) PublishFrame(f camera.Frame) {
	if f.Format == camera.FormatMJPEG {
		s.frameHub.BroadcastBinary(f.Data)
	}
	s.statusHub.BroadcastJSON(statusFor(s.cam, f, s.frameHub.ClientCount()))
}

// Shutdown gracefully stops the web server and disconnects all clients.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.frameHub.Stop()
	s.statusHub.Stop()
	return err
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
