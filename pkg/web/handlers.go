package web

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-camera/pkg/camera"
	"github.com/teslashibe/go-camera/pkg/hub"
)

// Status is the JSON payload pushed on the status feed and returned by
// the info endpoint.
type Status struct {
	Device     string `json:"device"`
	Format     string `json:"format"`
	Streaming  bool   `json:"streaming"`
	FrameSeq   uint64 `json:"frame_seq"`
	Clients    int    `json:"clients"`
	LastError  string `json:"last_error,omitempty"`
	CapturedAt string `json:"captured_at,omitempty"`
}

func statusFor(cam *camera.CallbackCamera, f camera.Frame, clients int) Status {
	st := Status{
		Device:    cam.Info().Name,
		Streaming: cam.IsStreamOpen(),
		FrameSeq:  f.Seq,
		Clients:   clients,
	}
	if format, err := cam.Format(); err == nil {
		st.Format = format.String()
	}
	if err := cam.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if !f.Timestamp.IsZero() {
		st.CapturedAt = f.Timestamp.Format(time.RFC3339Nano)
	}
	return st
}

// handleSnapshot serves the most recent frame as a single JPEG.
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	f := s.cam.LastFrame()
	if f.IsSentinel() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no frame captured yet",
		})
	}
	if f.Format != camera.FormatMJPEG {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": fmt.Sprintf("frame format %s is not JPEG", f.Format),
		})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(f.Data)
}

// streamIdleLimit ends an MJPEG response when the camera produces no new
// frame for this long, so writers for dead clients cannot pile up while
// the stream is stopped.
const streamIdleLimit = 30 * time.Second

// handleMJPEG serves a multipart/x-mixed-replace stream of JPEG frames.
// The writer polls the frame cache and pushes every new sequence number
// until the client disconnects.
func (s *Server) handleMJPEG(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary=frame")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		var last uint64
		idleSince := time.Now()
		for {
			f := s.cam.LastFrame()
			if f.IsSentinel() || f.Format != camera.FormatMJPEG || f.Seq == last {
				if time.Since(idleSince) > streamIdleLimit {
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}
			last = f.Seq
			idleSince = time.Now()

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(f.Data)); err != nil {
				return
			}
			if _, err := w.Write(f.Data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// handleInfo returns device identity and current status.
func (s *Server) handleInfo(c *fiber.Ctx) error {
	info := s.cam.Info()
	return c.JSON(fiber.Map{
		"index":       info.Index,
		"name":        info.Name,
		"description": info.Description,
		"status":      statusFor(s.cam, s.cam.LastFrame(), s.frameHub.ClientCount()),
	})
}

// ConfigResponse mirrors the camera's negotiated format.
type ConfigResponse struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate int    `json:"framerate"`
	Format    string `json:"format"`
}

// ConfigRequest carries the requested format changes; zero fields are
// left untouched. Preset, when set, is applied first and individual
// fields override it.
type ConfigRequest struct {
	Preset    string `json:"preset"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate int    `json:"framerate"`
	Format    string `json:"format"`
}

func (s *Server) currentConfig() (ConfigResponse, error) {
	format, err := s.cam.Format()
	if err != nil {
		return ConfigResponse{}, err
	}
	return ConfigResponse{
		Width:     format.Resolution.Width,
		Height:    format.Resolution.Height,
		FrameRate: format.FrameRate,
		Format:    string(format.FrameFormat),
	}, nil
}

// handleGetConfig returns the negotiated capture format.
func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	cfg, err := s.currentConfig()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(cfg)
}

// handleSetConfig applies resolution, frame rate and format changes
// through the camera facade and returns what the driver granted.
func (s *Server) handleSetConfig(c *fiber.Ctx) error {
	var req ConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.Preset != "" {
		preset := camera.GetPreset(req.Preset)
		if preset == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("unknown preset %q", req.Preset),
			})
		}
		if err := s.cam.SetFormat(*preset); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.Width > 0 && req.Height > 0 {
		res := camera.Resolution{Width: req.Width, Height: req.Height}
		if err := s.cam.SetResolution(res); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.FrameRate > 0 {
		if err := s.cam.SetFrameRate(req.FrameRate); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.Format != "" {
		if err := s.cam.SetFrameFormat(camera.FrameFormat(req.Format)); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
	}

	cfg, err := s.currentConfig()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(cfg)
}

// handleListPresets returns the named capture formats.
func (s *Server) handleListPresets(c *fiber.Ctx) error {
	presets := make(map[string]string)
	for name, format := range camera.Presets() {
		presets[name] = format.String()
	}
	return c.JSON(presets)
}

// handleListControls returns every control the device reports, with its
// current value.
func (s *Server) handleListControls(c *fiber.Ctx) error {
	ids, err := s.cam.Controls()
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	values := make(map[string]float64, len(ids))
	for _, id := range ids {
		v, err := s.cam.Control(id)
		if err != nil {
			continue
		}
		values[string(id)] = float64(v)
	}
	return c.JSON(values)
}

// SetControlRequest is the body for control updates.
type SetControlRequest struct {
	Value float64 `json:"value"`
}

// handleSetControl sets a single device control.
func (s *Server) handleSetControl(c *fiber.Ctx) error {
	var req SetControlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	id := camera.ControlID(c.Params("id"))
	if err := s.cam.SetControl(id, camera.ControlValue(req.Value)); err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, camera.ErrControlUnsupported) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	v, err := s.cam.Control(id)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"id": string(id), "value": float64(v)})
}

// handleFramesWS streams binary JPEG frames to a websocket client.
func (s *Server) handleFramesWS(c *websocket.Conn) {
	hub.NewClient(s.frameHub, c).Run()
}

// handleStatusWS streams JSON status updates to a websocket client.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c).Run()
}
