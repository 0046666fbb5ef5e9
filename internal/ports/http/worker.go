package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gorilla/websocket"
)

// upgrader performs the HTTP-to-WebSocket handshake for worker connections
//. CheckOrigin is permissive: workers are trusted CLI
// processes, not browsers, so cross-origin framing doesn't apply here.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// workerAuthorized checks the shared secret a worker's connection request
// carries, constant-time.
func (h *Handler) workerAuthorized(r *http.Request) bool {
	if h.Options.WorkerSharedSecret == "" {
		return true
	}

	got := r.Header.Get("X-Worker-Secret")

	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Options.WorkerSharedSecret)) == 1
}

// Connect handles GET /api/v1/worker/connect: upgrades to a websocket and
// hands the connection to the worker protocol Hub's read loop, which blocks
// until the worker disconnects.
func (h *Handler) Connect(c *fiber.Ctx) error {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if !h.workerAuthorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.Logger.Warnf("worker connect: upgrade failed: %v", err)
			return
		}

		h.Hub.Serve(r.Context(), conn)
	}

	return adaptor.HTTPHandlerFunc(handler)(c)
}
