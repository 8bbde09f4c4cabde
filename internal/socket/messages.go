package socket

import "encoding/json"

// InboundTag enumerates client→server message tags (§6).
type InboundTag string

const (
	TagSearchMatch      InboundTag = "search_match"
	TagCancelSearch     InboundTag = "cancel_search"
	TagGetSearchStatus  InboundTag = "get_search_status"
	TagStartGame        InboundTag = "start_game"
	TagRejoin           InboundTag = "rejoin"
	TagMove             InboundTag = "move"
	TagResign           InboundTag = "resign"
	TagOfferDraw        InboundTag = "offer_draw"
	TagAcceptDraw       InboundTag = "accept_draw"
	TagDeclineDraw      InboundTag = "decline_draw"
	TagOfferRematch     InboundTag = "offer_rematch"
	TagAcceptRematch    InboundTag = "accept_rematch"
	TagTimeUp           InboundTag = "time_up"
	TagRequestTimeSync  InboundTag = "request_time_sync"
)

// OutboundTag enumerates server→client message tags (§6).
type OutboundTag string

const (
	TagMatchFound          OutboundTag = "match_found"
	TagSearchStatus        OutboundTag = "search_status"
	TagGameOver            OutboundTag = "game_over"
	TagTimeUpdate          OutboundTag = "time_update"
	TagOpponentReconnecting OutboundTag = "opponent_reconnecting"
	TagOpponentDisconnected OutboundTag = "opponent_disconnected"
	TagDrawOffered         OutboundTag = "offer_draw"
	TagDrawDeclined        OutboundTag = "decline_draw"
	TagRematchOffered      OutboundTag = "offer_rematch"
)

// InboundMessage is the raw shape every client message is first decoded
// into; Payload is re-decoded into a tag-specific struct by the handler.
type InboundMessage struct {
	Tag     InboundTag      `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

// OutboundEnvelope wraps every response per §6 ("All responses wrap
// {success, message?, data?}").
type OutboundEnvelope struct {
	Tag     OutboundTag `json:"tag"`
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(tag OutboundTag, data interface{}) OutboundEnvelope {
	return OutboundEnvelope{Tag: tag, Success: true, Data: data}
}

func fail(tag OutboundTag, message string) OutboundEnvelope {
	return OutboundEnvelope{Tag: tag, Success: false, Message: message}
}

// Payload shapes for each inbound tag (§6).

type searchMatchPayload struct {
	GameType    string            `json:"gameType"`
	Variant     string            `json:"variant"`
	TimeControl timeControlPayload `json:"timeControl"`
}

type timeControlPayload struct {
	Time      int `json:"time"`
	Increment int `json:"increment"`
}

type gameIDPayload struct {
	GameID string `json:"gameId"`
}

type movePayload struct {
	GameID string `json:"gameId"`
	Move   string `json:"move"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

type timeUpPayload struct {
	GameID      string `json:"gameId"`
	PlayerColor string `json:"playerColor"`
}
