package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradeops/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	status, unsubStatus := s.Bus.Subscribe(events.EventStatusChange, 100)
	defer unsubStatus()
	progress, unsubProgress := s.Bus.Subscribe(events.EventDeployProgress, 100)
	defer unsubProgress()
	reports, unsubReports := s.Bus.Subscribe(events.EventHealthReport, 100)
	defer unsubReports()

	for {
		var msg any
		var ok bool
		select {
		case msg, ok = <-status:
		case msg, ok = <-progress:
		case msg, ok = <-reports:
		}
		if !ok {
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
