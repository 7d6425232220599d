package web

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-camera/internal/log"
)

// FeedClient consumes the websocket frame feed of a preview server from
// another process. Binary messages are JPEG frames; the newest one is
// kept and older ones are discarded.
type FeedClient struct {
	url string

	ws      *websocket.Conn
	wsMutex sync.Mutex

	// Latest received frame
	latestFrame []byte
	frameMutex  sync.RWMutex
	frameReady  chan struct{}

	// OnFrame, when set before Connect, is invoked from the read loop
	// for every received frame.
	OnFrame func(jpeg []byte)

	closed atomic.Bool
}

// NewFeedClient creates a client for the frame feed at addr, e.g.
// "host:8089".
func NewFeedClient(addr string) *FeedClient {
	return &FeedClient{
		url:        fmt.Sprintf("ws://%s/ws/frames", addr),
		frameReady: make(chan struct{}, 1),
	}
}

// Connect dials the feed and starts the read loop.
func (c *FeedClient) Connect() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("web: connect frame feed: %w", err)
	}
	c.wsMutex.Lock()
	c.ws = ws
	c.wsMutex.Unlock()

	go c.readLoop()
	return nil
}

func (c *FeedClient) readLoop() {
	for !c.closed.Load() {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				log.Debug("frame feed read failed", "err", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		c.frameMutex.Lock()
		c.latestFrame = data
		c.frameMutex.Unlock()

		select {
		case c.frameReady <- struct{}{}:
		default:
		}

		if c.OnFrame != nil {
			c.OnFrame(data)
		}
	}
}

// GetFrame returns a copy of the latest received frame.
func (c *FeedClient) GetFrame() ([]byte, error) {
	c.frameMutex.RLock()
	defer c.frameMutex.RUnlock()

	if c.latestFrame == nil {
		return nil, fmt.Errorf("web: no frame received yet")
	}

	frame := make([]byte, len(c.latestFrame))
	copy(frame, c.latestFrame)
	return frame, nil
}

// WaitForFrame blocks until a frame arrives or the timeout expires.
func (c *FeedClient) WaitForFrame(timeout time.Duration) ([]byte, error) {
	select {
	case <-c.frameReady:
		return c.GetFrame()
	case <-time.After(timeout):
		return nil, fmt.Errorf("web: timeout waiting for frame")
	}
}

// Close shuts down the feed connection. Safe to call more than once and
// safe concurrently with the read loop.
func (c *FeedClient) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.wsMutex.Lock()
	if c.ws != nil {
		c.ws.Close()
	}
	c.wsMutex.Unlock()
}
