package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func writeSSEHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// writeSSEData emits one data event and flushes it out. Returns false when
// the client connection is gone.
func writeSSEData(c *gin.Context, payload []byte) bool {
	if _, err := c.Writer.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := c.Writer.Write(payload); err != nil {
		return false
	}
	if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
		return false
	}
	if f, ok := c.Writer.(http.Flusher); ok {
		f.Flush()
	}
	return true
}

// writeSSEDone emits the OpenAI-style stream terminator.
func writeSSEDone(c *gin.Context) {
	_, _ = c.Writer.Write([]byte("data: [DONE]\n\n"))
	if f, ok := c.Writer.(http.Flusher); ok {
		f.Flush()
	}
}
