package httpadapter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// sseWriter serializes event and keepalive writes on one response.
type sseWriter struct {
	mu sync.Mutex
	c  *gin.Context
}

func newSSEWriter(c *gin.Context) *sseWriter {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream;charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	return &sseWriter{c: c}
}

func (w *sseWriter) event(name string, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	before := len(w.c.Errors)
	w.c.SSEvent(name, data)
	if len(w.c.Errors) > before {
		return w.c.Errors.Last().Err
	}
	w.c.Writer.Flush()
	return nil
}

func (w *sseWriter) comment(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.c.Writer.WriteString(": " + text + "\n\n"); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// keepAlive writes a comment line every interval until the returned stop
// func is called or ctx ends.
func (w *sseWriter) keepAlive(ctx context.Context, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.comment("keepalive"); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
