package bus

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies a WebSocket frame.
type MessageType string

const (
	// TypeSubscribe asks the hub to forward a channel to the connection.
	TypeSubscribe MessageType = "subscribe"
	// TypeUnsubscribe stops forwarding a channel.
	TypeUnsubscribe MessageType = "unsubscribe"
	// TypePublish publishes a payload through the hub.
	TypePublish MessageType = "publish"
	// TypeMessage carries a payload from the hub to a subscriber.
	TypeMessage MessageType = "message"
)

// Envelope is the msgpack frame exchanged between Hub and Client.
type Envelope struct {
	Type    MessageType `msgpack:"type" json:"type"`
	Channel string      `msgpack:"channel" json:"channel"`
	Payload string      `msgpack:"payload,omitempty" json:"payload,omitempty"`
}

func NewEnvelope(msgType MessageType, channel, payload string) *Envelope {
	return &Envelope{
		Type:    msgType,
		Channel: channel,
		Payload: payload,
	}
}

func (e *Envelope) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Channel == "" {
		return nil, fmt.Errorf("decode envelope: missing channel")
	}
	return &e, nil
}
