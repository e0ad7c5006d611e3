package types

// Bridge -> Overlay
// gacha_pulls:
//   payload|data:
//     pulls: PullRecord[]
//     displayName|display_name|userName|user_name|name: string
//     userId|user_id|uid: string
//     totalPulls|total_pulls|numberOfPulls|number_of_pulls|count: number
//     setName|set_name|set: string
// clear: {}
// ping: { ts: any }
// hello: { version: number, requiresAuth: boolean }
// ready_ack: {}
// error: { code: string }
//
// Overlay -> Bridge
// ready: { version: 1, token?: string, overlay: "gacha" }
// pong:  { ts: <echoed> }

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrNoPayload = errors.New("message has no payload")

const (
	MsgGachaPulls = "gacha_pulls"
	MsgClear      = "clear"
	MsgPing       = "ping"
	MsgPong       = "pong"
	MsgReady      = "ready"
	MsgHello      = "hello"
	MsgReadyAck   = "ready_ack"
	MsgError      = "error"
)

// Envelope is the discriminated wire frame. Payload and TS stay raw so
// each message type can decode (or echo) its own shape.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	TS      json.RawMessage `json:"ts,omitempty"`
	Code    string          `json:"code,omitempty"`
}

type ReadyMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Token   string `json:"token,omitempty"`
	Overlay string `json:"overlay"`
}

type PongMessage struct {
	Type string          `json:"type"`
	TS   json.RawMessage `json:"ts,omitempty"`
}

// PullRecord is one rewarded pull, immutable once normalized.
type PullRecord struct {
	Name        string
	Rarity      string // raw tier token; canonicalized at asset resolution
	Shiny       bool
	Level       int
	ImageRef    string
	SetName     string
	RevealDelay time.Duration // explicit reveal override, 0 = none
}

// BatchMeta is the per-trigger metadata shared read-only by every entry
// the trigger renders. TotalPulls is the display count and may exceed the
// number of records in the current chunk.
type BatchMeta struct {
	TotalPulls  int
	DisplayName string
	UserID      string
	SetName     string
}

type wirePull struct {
	Name        string `json:"name"`
	Rarity      string `json:"rarity"`
	IsShinySnk  *bool  `json:"is_shiny"`
	IsShiny     *bool  `json:"isShiny"`
	Shiny       *bool  `json:"shiny"`
	Level       int    `json:"level"`
	ImagePathSk string `json:"image_path"`
	ImagePath   string `json:"imagePath"`
	Image       string `json:"image"`
	ImageRef    string `json:"imageRef"`
	SetNameSnk  string `json:"set_name"`
	SetName     string `json:"setName"`
	RevealTime  *int   `json:"revealTime"`
	RevealSnk   *int   `json:"reveal_time"`
	RevealMS    *int   `json:"reveal_delay_ms"`
}

type wireBatch struct {
	Pulls []wirePull `json:"pulls"`

	DisplayName  string `json:"displayName"`
	DisplayNmSnk string `json:"display_name"`
	UserName     string `json:"userName"`
	UserNameSnk  string `json:"user_name"`
	Name         string `json:"name"`

	UserID    string `json:"userId"`
	UserIDSnk string `json:"user_id"`
	UID       string `json:"uid"`

	TotalPulls  *int `json:"totalPulls"`
	TotalPlsSnk *int `json:"total_pulls"`
	NumPulls    *int `json:"numberOfPulls"`
	NumPullsSnk *int `json:"number_of_pulls"`
	Count       *int `json:"count"`

	SetName    string `json:"setName"`
	SetNameSnk string `json:"set_name"`
	Set        string `json:"set"`
}

// ParseGachaPulls normalizes a gacha_pulls envelope into a BatchMeta and
// pull list. Pulls are taken from payload first, then data. An empty pull
// list is a valid result; callers treat it as a clear.
func ParseGachaPulls(env Envelope) (BatchMeta, []PullRecord, error) {
	raw := env.Payload
	if emptyRaw(raw) {
		raw = env.Data
	}
	if emptyRaw(raw) {
		return BatchMeta{}, nil, ErrNoPayload
	}

	var wb wireBatch
	if err := json.Unmarshal(raw, &wb); err != nil {
		return BatchMeta{}, nil, err
	}

	// a payload without pulls may still carry them under data
	if len(wb.Pulls) == 0 && !emptyRaw(env.Data) && !emptyRaw(env.Payload) {
		var alt wireBatch
		if err := json.Unmarshal(env.Data, &alt); err == nil && len(alt.Pulls) > 0 {
			wb.Pulls = alt.Pulls
		}
	}

	meta := BatchMeta{
		DisplayName: firstNonEmpty(wb.DisplayName, wb.DisplayNmSnk, wb.UserName, wb.UserNameSnk, wb.Name),
		UserID:      firstNonEmpty(wb.UserID, wb.UserIDSnk, wb.UID),
		SetName:     firstNonEmpty(wb.SetName, wb.SetNameSnk, wb.Set),
	}
	meta.TotalPulls = firstPositive(wb.TotalPulls, wb.TotalPlsSnk, wb.NumPulls, wb.NumPullsSnk, wb.Count)
	if meta.TotalPulls <= 0 {
		meta.TotalPulls = len(wb.Pulls)
	}

	pulls := make([]PullRecord, 0, len(wb.Pulls))
	for _, wp := range wb.Pulls {
		pulls = append(pulls, normalizePull(wp))
	}
	return meta, pulls, nil
}

func normalizePull(wp wirePull) PullRecord {
	rec := PullRecord{
		Name:     strings.TrimSpace(wp.Name),
		Rarity:   strings.TrimSpace(wp.Rarity),
		Level:    wp.Level,
		ImageRef: firstNonEmpty(wp.ImagePathSk, wp.ImagePath, wp.Image, wp.ImageRef),
		SetName:  firstNonEmpty(wp.SetNameSnk, wp.SetName),
	}
	if rec.Level < 0 {
		rec.Level = 0
	}
	for _, b := range []*bool{wp.IsShinySnk, wp.IsShiny, wp.Shiny} {
		if b != nil {
			rec.Shiny = *b
			break
		}
	}
	for _, ms := range []*int{wp.RevealTime, wp.RevealSnk, wp.RevealMS} {
		if ms != nil && *ms > 0 {
			rec.RevealDelay = time.Duration(*ms) * time.Millisecond
			break
		}
	}
	return rec
}

func emptyRaw(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstPositive(vals ...*int) int {
	for _, v := range vals {
		if v != nil && *v > 0 {
			return *v
		}
	}
	return 0
}
