package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepreport/internal/events"
	"deepreport/internal/services/tracker"
)

func TestStreamEvents(t *testing.T) {
	t.Run("Should forward events for the requested report", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)

		srv := httptest.NewServer(h.handler)
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?report=" + report.ID + "&access_token=" + token(t, h.user, time.Hour)
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		defer conn.Close()

		// the subscription is registered after the handshake completes
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					h.broker.Publish(tracker.EventTopic("someone-else"), map[string]string{"status": "ignored"})
					h.broker.Publish(tracker.EventTopic(report.ID), map[string]string{"status": tracker.TaskStatusRunning})
				}
			}
		}()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var event events.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, tracker.EventTopic(report.ID), event.Topic)
	})

	t.Run("Should require a report for plain users", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, h.user, http.MethodGet, "/api/v1/events", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should not stream another user's report", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)

		rec := h.do(t, h.other, http.MethodGet, "/api/v1/events?report="+report.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Should refuse foreign origins", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)

		srv := httptest.NewServer(h.handler)
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?report=" + report.ID + "&access_token=" + token(t, h.user, time.Hour)
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://evil.example"}})
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
