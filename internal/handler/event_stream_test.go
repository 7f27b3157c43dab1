package handler_test

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/perception-api/internal/dto"
)

func TestEventStreamDeliversLifecycleEvents(t *testing.T) {
	env := setupAPI(t)
	env.seedClassroom(t)

	baseURL, shutdown := startServer(t, env.app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/events/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, http.Header{testEmailHdr: {studentEmail}})
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	ready := readEvent(t, conn)
	require.Equal(t, "stream.ready", ready.Type)

	paperID := env.createPaper(t, 1)

	created := readEvent(t, conn)
	require.Equal(t, dto.EventPaperCreated, created.Type)
	require.Equal(t, studentEmail, created.Topic)
	require.Equal(t, paperID, created.PaperID)
	require.Equal(t, teacherEmail, created.ActorEmail)
}

func TestEventStreamRequiresUpgrade(t *testing.T) {
	env := setupAPI(t)
	env.seedClassroom(t)

	env.expect(t, fiber.StatusUpgradeRequired, http.MethodGet, "/api/v1/events/ws", studentEmail, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var event dto.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func startServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
