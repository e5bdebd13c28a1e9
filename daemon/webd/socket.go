package webd

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/olahol/melody"
	"github.com/rovermap/insd/events"
	"github.com/rovermap/insd/match"
	"github.com/rovermap/insd/types/pose"
)

type websocketAction string

var (
	websocketActionPose websocketAction = "pose"
	websocketActionRoad websocketAction = "road"
)

type broadcast struct {
	Action websocketAction `json:"action"`
	Pose   *pose.Pose      `json:"pose,omitempty"`
	Road   *match.Match    `json:"road,omitempty"`
}

// initMelody sets up the websocket handler.
func (s *WebDaemon) initMelody(ctx context.Context) {
	s.melodyInstance = melody.New()

	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		s.logger.Debug("Websocket connected", "remote", sess.Request.RemoteAddr)
		// Seed the new client with the latest pose per variant.
		for _, p := range s.engine.Snapshots() {
			b, _ := json.Marshal(broadcast{Action: websocketActionPose, Pose: p})
			_ = sess.Write(b)
		}
	})

	// Incoming client messages are not part of the protocol. Log and drop.
	s.melodyInstance.HandleMessage(func(sess *melody.Session, msg []byte) {
		s.logger.Debug("Websocket message", "remote", sess.Request.RemoteAddr, "msg", string(msg))
	})

	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		s.logger.Debug("Websocket disconnected", "remote", sess.Request.RemoteAddr)
	})

	s.melodyInstance.HandleError(func(sess *melody.Session, e error) {
		s.logger.Debug("Websocket error", "remote", sess.Request.RemoteAddr, "error", e)
	})

	// Broadcast pose updates and road matches to all connected clients.
	poses := make(chan *pose.Pose, 64)
	poseSub := events.PoseUpdateFeed.Subscribe(poses)
	roadsCh := make(chan *match.Match, 8)
	roadSub := events.RoadMatchFeed.Subscribe(roadsCh)
	go func() {
		defer poseSub.Unsubscribe()
		defer roadSub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-poses:
				b, err := json.Marshal(broadcast{Action: websocketActionPose, Pose: p})
				if err != nil {
					slog.Error("Failed to marshal pose event", "error", err)
					continue
				}
				if err := s.melodyInstance.Broadcast(b); err != nil {
					slog.Warn("Failed to broadcast pose event", "error", err)
				}
			case m := <-roadsCh:
				b, err := json.Marshal(broadcast{Action: websocketActionRoad, Road: m})
				if err != nil {
					slog.Error("Failed to marshal road event", "error", err)
					continue
				}
				if err := s.melodyInstance.Broadcast(b); err != nil {
					slog.Warn("Failed to broadcast road event", "error", err)
				}
			case err := <-poseSub.Err():
				slog.Error("Pose feed subscription closed", "error", err)
				return
			case err := <-roadSub.Err():
				slog.Error("Road feed subscription closed", "error", err)
				return
			}
		}
	}()
}
