package realtime

import (
	"time"
)

// MessageType names an inbound or outbound realtime message.
type MessageType string

// Inbound
const (
	TypeSubscribe      MessageType = "subscribe"
	TypeUnsubscribe    MessageType = "unsubscribe"
	TypeUnsubscribeAll MessageType = "unsubscribe_all"
	TypeGetQuote       MessageType = "get_quote"
	TypePing           MessageType = "ping"
)

// Outbound
const (
	TypeQuote        MessageType = "quote"
	TypeQuoteUpdate  MessageType = "quote_update"
	TypeSubscribed   MessageType = "subscribed"
	TypeUnsubscribed MessageType = "unsubscribed"
	TypeError        MessageType = "error"
	TypeHeartbeat    MessageType = "heartbeat"
)

// Inbound is a client request. Symbol and Symbols may both be set.
type Inbound struct {
	Type    MessageType `json:"type"`
	Symbol  string      `json:"symbol,omitempty"`
	Symbols []string    `json:"symbols,omitempty"`
}

// symbols returns Symbol followed by Symbols, skipping blanks.
func (in Inbound) symbols() []string {
	out := make([]string, 0, len(in.Symbols)+1)
	if in.Symbol != "" {
		out = append(out, in.Symbol)
	}
	for _, s := range in.Symbols {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Message is pushed to a connection.
type Message struct {
	Type    MessageType `json:"type"`
	Symbol  string      `json:"symbol,omitempty"`
	Symbols []string    `json:"symbols,omitempty"`
	Data    any         `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Time    string      `json:"time"`
}

func newMessage(t MessageType, symbol string, data any) Message {
	return Message{Type: t, Symbol: symbol, Data: data, Time: time.Now().UTC().Format(time.RFC3339)}
}

func errorMessage(symbol, code, text string) Message {
	m := newMessage(TypeError, symbol, nil)
	m.Code = code
	m.Error = text
	return m
}
