package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/executor"
)

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// Stream handles GET /tasks/{id}/stream: live agent events for one task,
// closed normally after the session's terminal event.
func (h *TaskHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.svc.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	id := chi.URLParam(r, "id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, h.svc.Hub, id, conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func streamEvents(ctx context.Context, hub *executor.Hub, taskID string, writer wsWriter) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := hub.Subscribe(subCtx, taskID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			if err := writer.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
			if evt.Type.Terminal() {
				return nil
			}
		}
	}
}
