package web

import (
	"strings"
	"sync"
	"testing"
)

func TestFeedClient_FrameFeedURL(t *testing.T) {
	c := NewFeedClient("camhost:8089")
	if c.url != "ws://camhost:8089/ws/frames" {
		t.Errorf("feed url: %q", c.url)
	}
}

func TestFeedClient_GetFrameBeforeConnect(t *testing.T) {
	c := NewFeedClient("camhost:8089")
	if _, err := c.GetFrame(); err == nil || !strings.Contains(err.Error(), "no frame") {
		t.Errorf("GetFrame before any frame: %v", err)
	}
}

func TestFeedClient_CloseIsIdempotentAndSafeWithoutConnect(t *testing.T) {
	c := NewFeedClient("camhost:8089")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	if !c.closed.Load() {
		t.Error("client not marked closed")
	}
}
