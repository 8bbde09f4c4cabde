package models

import "time"

// TimeControl describes a game-type's base time and increment, in seconds.
type TimeControl struct {
	Time      int `json:"time"`
	Increment int `json:"increment"`
}

// GameType is a time control within a variant, e.g. "RAPID_10_0".
type GameType string

// SearchSession is the ephemeral record of a player actively matchmaking.
// It lives in LiveStore under key search_session:<playerId> with a 300s TTL.
type SearchSession struct {
	PlayerID       string      `json:"playerId"`
	GameType       GameType    `json:"gameType"`
	GameVariant    Variant     `json:"gameVariant"`
	TimeControl    TimeControl `json:"timeControl"`
	InitialRating  int         `json:"initialRating"`
	CurrentRange   int         `json:"currentRange"`
	SearchStartTime time.Time  `json:"searchStartTime"`
	ConnectionID   string      `json:"connectionId"`
}

// SearchDuration returns how long this session has been searching.
func (s SearchSession) SearchDuration(now time.Time) time.Duration {
	return now.Sub(s.SearchStartTime)
}

// QueueEntry is one member of a MatchQueue sorted set: score = rating.
type QueueEntry struct {
	PlayerID string
	Rating   float64
}

// TickResult is the outcome of one Matchmaker.Tick invocation.
type TickResult struct {
	Found          bool
	GameID         string
	Opponent       string
	CurrentRange   int
	SearchDuration time.Duration
	FinalRange     int
}
