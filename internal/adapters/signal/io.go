package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voiceline/signaling/internal/domain"
)

const writeWait = 5 * time.Second

func (g *WSGateway) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(g.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (g *WSGateway) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		cancel()
		g.ctrl.Disconnect(id)
		c.Close()
	}()

	c.conn.SetReadLimit(g.cfg.ReadLimit)
	pongWait := g.cfg.PingPeriod + writeWait
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				return
			}
			g.handleMessage(id, data)
		}
	}
}

func (g *WSGateway) handleMessage(id domain.ConnID, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		return
	}

	switch env.Type {
	case "join-voice-room":
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
			return
		}
		g.ctrl.JoinRoom(id, domain.RoomID(p.RoomID))
	case "leave-voice-room":
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("bad leave payload")
			return
		}
		g.ctrl.LeaveRoom(id, domain.RoomID(p.RoomID))
	case "voice-offer":
		var p struct {
			RoomID string          `json:"roomId"`
			Offer  json.RawMessage `json:"offer"`
			To     string          `json:"to"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("bad offer payload")
			return
		}
		g.ctrl.ForwardOffer(id, p.RoomID, p.Offer, domain.ConnID(p.To))
	case "voice-answer":
		var p struct {
			RoomID string          `json:"roomId"`
			Answer json.RawMessage `json:"answer"`
			To     string          `json:"to"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("bad answer payload")
			return
		}
		g.ctrl.ForwardAnswer(id, p.RoomID, p.Answer, domain.ConnID(p.To))
	case "ice-candidate":
		var p struct {
			Candidate json.RawMessage `json:"candidate"`
			To        string          `json:"to"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("bad candidate payload")
			return
		}
		g.ctrl.ForwardCandidate(id, p.Candidate, domain.ConnID(p.To))
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}
