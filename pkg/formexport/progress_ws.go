package formexport

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Progress is read-only and carries no secrets.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressPollInterval is how often the stream re-reads the tracker.
const progressPollInterval = 500 * time.Millisecond

// handleProgressStream pushes progress updates for a project over a
// websocket until the batch completes or the client disconnects. Duplicate
// states are suppressed; the final 100% state is always sent.
func (a *App) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	lastSent := -1
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			state := a.tracker.Get(projectID)
			if state.Percentage == lastSent && state.Percentage != 100 {
				continue
			}
			if err := conn.WriteJSON(state); err != nil {
				return
			}
			lastSent = state.Percentage
			if state.Percentage >= 100 {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "export complete"))
				return
			}
		}
	}
}
