package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sherine-k/intersection/pkg/simulation"
)

const (
	TypeState   = "STATE"
	TypeSpawn   = "SPAWN"
	TypeSpawned = "SPAWNED"
	TypeError   = "ERROR"
)

// Source is the part of the simulator a renderer talks to
type Source interface {
	GetState() map[string]simulation.ApproachView
	GetCurrentCycle() int64
	GetCompletedVehicles() int64
	GetStats() simulation.TrafficStats
	GetPhase() simulation.Phase
	AddVehicle(dir simulation.Direction, emergency bool) (simulation.Vehicle, error)
}

// StateMsg is pushed to every client at the snapshot interval
type StateMsg struct {
	Type       string                             `json:"type"`
	Phase      string                             `json:"phase"`
	Cycle      int64                              `json:"cycle"`
	Completed  int64                              `json:"completed"`
	Vehicles   int                                `json:"vehicles_total"`
	Average    float64                            `json:"average_wait"`
	Approaches map[string]simulation.ApproachView `json:"approaches"`
}

// SpawnMsg asks for a vehicle to be injected
type SpawnMsg struct {
	Type      string               `json:"type"`
	Direction simulation.Direction `json:"direction"`
	Emergency bool                 `json:"emergency"`
}

// SpawnedMsg acknowledges a SpawnMsg
type SpawnedMsg struct {
	Type    string             `json:"type"`
	Vehicle simulation.Vehicle `json:"vehicle"`
}

// ErrorMsg reports a rejected client message
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type baseMsg struct {
	Type string `json:"type"`
}

type Server struct {
	sim      Source
	interval time.Duration
	log      logrus.FieldLogger

	upgrader websocket.Upgrader
}

func NewServer(sim Source, interval time.Duration, logger logrus.FieldLogger) *Server {
	return &Server{
		sim:      sim,
		interval: interval,
		log:      logger.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.WithError(err).Debug("upgrade failed")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 8)

		// Writer goroutine.
		go func() {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			s.pushState(ctx, out)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ticker.C:
					s.pushState(ctx, out)
				}
			}
		}()

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			var base baseMsg
			if err := json.Unmarshal(msg, &base); err != nil {
				s.reply(ctx, out, ErrorMsg{Type: TypeError, Message: "malformed message"})
				continue
			}
			if base.Type != TypeSpawn {
				s.reply(ctx, out, ErrorMsg{Type: TypeError, Message: "unsupported type " + base.Type})
				continue
			}
			var spawn SpawnMsg
			if err := json.Unmarshal(msg, &spawn); err != nil {
				s.reply(ctx, out, ErrorMsg{Type: TypeError, Message: err.Error()})
				continue
			}
			v, err := s.sim.AddVehicle(spawn.Direction, spawn.Emergency)
			if err != nil {
				s.reply(ctx, out, ErrorMsg{Type: TypeError, Message: err.Error()})
				continue
			}
			s.reply(ctx, out, SpawnedMsg{Type: TypeSpawned, Vehicle: v})
		}
	}
}

// Snapshot builds the STATE message for the current simulator state
func (s *Server) Snapshot() StateMsg {
	stats := s.sim.GetStats()
	return StateMsg{
		Type:       TypeState,
		Phase:      s.sim.GetPhase().String(),
		Cycle:      s.sim.GetCurrentCycle(),
		Completed:  s.sim.GetCompletedVehicles(),
		Vehicles:   stats.TotalVehicles,
		Average:    stats.Average(),
		Approaches: s.sim.GetState(),
	}
}

// pushState drops the snapshot when the client is not keeping up; the next
// tick sends a fresher one
func (s *Server) pushState(ctx context.Context, out chan []byte) {
	b, err := json.Marshal(s.Snapshot())
	if err != nil {
		s.log.WithError(err).Warn("failed to encode state")
		return
	}
	select {
	case <-ctx.Done():
	case out <- b:
	default:
	}
}

func (s *Server) reply(ctx context.Context, out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case <-ctx.Done():
	case out <- b:
	}
}
