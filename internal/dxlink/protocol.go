package dxlink

import (
	"encoding/json"
	"fmt"
)

// Wire message types, as sequenced by the dxLink handshake.
const (
	typeSetup            = "SETUP"
	typeAuth             = "AUTH"
	typeAuthState        = "AUTH_STATE"
	typeChannelRequest   = "CHANNEL_REQUEST"
	typeChannelOpened    = "CHANNEL_OPENED"
	typeFeedSubscription = "FEED_SUBSCRIPTION"
	typeFeedData         = "FEED_DATA"
	typeKeepalive        = "KEEPALIVE"
	typeError            = "ERROR"
)

const (
	authStateAuthorized   = "AUTHORIZED"
	authStateUnauthorized = "UNAUTHORIZED"
)

// protocolVersion is the dxLink version declared in SETUP.
const protocolVersion = "1.0.0"

type setupMessage struct {
	Type                   string `json:"type"`
	Channel                int    `json:"channel"`
	Version                string `json:"version"`
	KeepaliveTimeout       int    `json:"keepaliveTimeout"`
	AcceptKeepaliveTimeout int    `json:"acceptKeepaliveTimeout"`
}

type authMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
	Token   string `json:"token"`
}

type channelParameters struct {
	Contract string `json:"contract"`
}

type channelRequestMessage struct {
	Type       string            `json:"type"`
	Channel    int               `json:"channel"`
	Service    string            `json:"service"`
	Parameters channelParameters `json:"parameters"`
}

// Subscription pairs one instrument symbol with one event kind in a
// FEED_SUBSCRIPTION add list.
type Subscription struct {
	Symbol string    `json:"symbol"`
	Type   EventKind `json:"type"`
}

type feedSubscriptionMessage struct {
	Type    string         `json:"type"`
	Channel int            `json:"channel"`
	Add     []Subscription `json:"add"`
}

type keepaliveMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
}

// inboundMessage is the superset of server message shapes we inspect.
// Unrecognized types are ignored by the caller.
type inboundMessage struct {
	Type    string          `json:"type"`
	Channel int             `json:"channel"`
	State   string          `json:"state,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

func parseInbound(raw []byte) (*inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: undecodable frame: %v", ErrProtocol, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: frame without type", ErrProtocol)
	}
	return &msg, nil
}

// parseFeedData converts a FEED_DATA payload into typed events, skipping
// items of unknown kind.
func parseFeedData(data json.RawMessage) ([]Event, error) {
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: undecodable FEED_DATA payload: %v", ErrProtocol, err)
	}

	events := make([]Event, 0, len(items))
	for _, item := range items {
		if ev, ok := eventFromItem(item); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}
