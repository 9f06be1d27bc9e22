package protocol

import (
	"factorycraft.ai/internal/sim/factory"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/state"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// MaxQueue bounds buffered STATE_CHANGE messages for this client.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	Tick            uint64     `json:"tick"`
	TickRateHz      int        `json:"tick_rate_hz"`
	CatalogDigest   string     `json:"catalog_digest"`
	State           state.View `json:"state"`
}

// LAYOUT (client -> server) replaces the whole factory layout at the next tick.
type LayoutMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	factory.Layout
}

// QUERY_NEARBY (client -> server)
type QueryNearbyMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ReqID           string    `json:"req_id"`
	Position        geom.Vec2 `json:"position"`
	Radius          float64   `json:"radius"`
}

// NEARBY (server -> client)
type NearbyMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	IDs             []string `json:"ids"`
}

// STATE_REQ (client -> server) asks for a full resync, e.g. after dropped changes.
type StateReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id,omitempty"`
	State           state.View `json:"state"`
}

// STATE_CHANGE (server -> client)
type StateChangeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Change          state.Change `json:"change"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
