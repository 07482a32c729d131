package public

import (
	"io"

	"github.com/smileref/smileref/internal/constants"
	handlershared "github.com/smileref/smileref/internal/http/handlers/shared"
	"github.com/smileref/smileref/internal/http/response"

	"github.com/gin-gonic/gin"
)

// StreamDisplayEvents 候诊屏事件流（SSE）
// 订阅 qr_display 房间，推送 new_qr / qr_clear 事件直到客户端断开
func (h *Handler) StreamDisplayEvents(c *gin.Context) {
	events, cancel, err := h.Broker.Subscribe(c.Request.Context(), constants.PushRoomQRDisplay)
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to subscribe display events", err)
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	handlershared.RequestLog(c).Infow("display_stream_opened", "room", constants.PushRoomQRDisplay)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
