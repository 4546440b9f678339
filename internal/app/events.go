package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/voiceline/signaling/internal/core"
)

// Outbound events are flat JSON objects discriminated by "type".

type presenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type roomFullEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Max    int    `json:"max"`
}

type offerEvent struct {
	Type   string          `json:"type"`
	From   string          `json:"from"`
	Offer  json.RawMessage `json:"offer"`
	RoomID string          `json:"roomId"`
}

type answerEvent struct {
	Type   string          `json:"type"`
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer"`
	RoomID string          `json:"roomId"`
}

type candidateEvent struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

func marshalEvent(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app").Msg("marshal event")
		return nil, false
	}
	return b, true
}
