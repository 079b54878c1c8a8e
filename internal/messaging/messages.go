// Package messaging carries requests between the page context and the privileged
// background context.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type names a message kind on the wire.
type Type string

const (
	TypeFetchExternalCSS          Type = "FetchExternalCss"
	TypeExternalCSSFetchCompleted Type = "ExternalCssFetchCompleted"
	TypeExternalCSSFetchFailed    Type = "ExternalCssFetchFailed"
	TypeErrorMessage              Type = "ErrorMessage"
)

// ErrUnknownType is returned when decoding an envelope of an unknown kind.
var ErrUnknownType = errors.New("messaging: unknown message type")

// Message is any message exchanged over a Bus.
type Message interface {
	Type() Type
}

// FetchExternalCSS asks the background context to download a stylesheet the page
// context could not read.
type FetchExternalCSS struct {
	URL string `json:"url"`
}

// ExternalCSSFetchCompleted answers FetchExternalCSS with the stylesheet text.
type ExternalCSSFetchCompleted struct {
	URL     string `json:"url"`
	CSSText string `json:"cssText"`
}

// ExternalCSSFetchFailed answers FetchExternalCSS with an error description.
type ExternalCSSFetchFailed struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ErrorMessage reports a problem on the other side. It is informational only.
type ErrorMessage struct {
	Text string `json:"text"`
}

func (FetchExternalCSS) Type() Type          { return TypeFetchExternalCSS }
func (ExternalCSSFetchCompleted) Type() Type { return TypeExternalCSSFetchCompleted }
func (ExternalCSSFetchFailed) Type() Type    { return TypeExternalCSSFetchFailed }
func (ErrorMessage) Type() Type              { return TypeErrorMessage }

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes msg into a typed JSON envelope.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("messaging: encode %s: %w", msg.Type(), err)
	}
	return json.Marshal(envelope{Type: msg.Type(), Payload: payload})
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("messaging: decode envelope: %w", err)
	}
	var (
		msg Message
		err error
	)
	switch env.Type {
	case TypeFetchExternalCSS:
		var m FetchExternalCSS
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case TypeExternalCSSFetchCompleted:
		var m ExternalCSSFetchCompleted
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case TypeExternalCSSFetchFailed:
		var m ExternalCSSFetchFailed
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case TypeErrorMessage:
		var m ErrorMessage
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("messaging: decode %s: %w", env.Type, err)
	}
	return msg, nil
}
