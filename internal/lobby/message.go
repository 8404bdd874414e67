package lobby

import (
	"encoding/json"
	"errors"
	"strings"

	"monopoly_server/internal/game"
)

// Inbound message types.
const (
	MsgGameCreate        = "GAME_CREATE"
	MsgRequestJoin       = "REQUEST_JOIN"
	MsgGameStart         = "GAME_START"
	MsgRequestRoll       = "REQUEST_ROLL"
	MsgFinishTurn        = "FINISH_TURN"
	MsgChoiceResponse    = "CHOICE_RESPONSE"
	MsgRequestUpgrade    = "REQUEST_UPGRADE"
	MsgRequestMortgage   = "REQUEST_MORTGAGE"
	MsgRequestUnmortgage = "REQUEST_UNMORTGAGE"
	MsgLeaveGame         = "LEAVE_GAME"
	MsgGameEnd           = "GAME_END"
)

// Envelope is the shape of every frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type CreatePayload struct {
	HostName string `json:"hostName"`
}

type JoinPayload struct {
	LobbyID string `json:"lobbyId"`
	Name    string `json:"name"`
}

type PropertyPayload struct {
	PropertyID *int `json:"propertyId"`
}

type ErrorPayload struct {
	Code    game.Code `json:"code"`
	Message string    `json:"message"`
}

// Decode parses a raw frame. Malformed frames are protocol errors.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, game.NewError(game.CodeProtocol, "malformed message")
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return Envelope{}, game.NewError(game.CodeProtocol, "message type is required")
	}
	return env, nil
}

// DecodeData unmarshals the envelope body into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return game.NewError(game.CodeProtocol, "%s requires data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return game.NewError(game.CodeProtocol, "bad %s data", e.Type)
	}
	return nil
}

// Encode builds an outbound frame.
func Encode(kind game.EventKind, data any) ([]byte, error) {
	return json.Marshal(outbound{Type: string(kind), Data: data})
}

// ErrorFrame renders err as an ERROR frame. Errors that are not game errors
// are reported as INTERNAL without detail.
func ErrorFrame(err error) []byte {
	p := ErrorPayload{Code: game.CodeOf(err), Message: "internal error"}
	var ge *game.Error
	if errors.As(err, &ge) {
		p.Message = ge.Message
	}
	data, _ := Encode(game.EventError, p)
	return data
}
