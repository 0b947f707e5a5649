// Package tasks implements the wire protocol's MessageCodec: the JSON
// envelope, its type-specific arguments, and the opaque-payload
// serialization used by TASK submissions. It is symmetric between client
// and service.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the tagged variant for Envelope.Type.
type MessageType int

const (
	Initialization MessageType = 0
	Info           MessageType = 1
	Error          MessageType = 2
	Task           MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case Initialization:
		return "INITIALIZATION"
	case Info:
		return "INFO"
	case Error:
		return "ERROR"
	case Task:
		return "TASK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// ErrorCode enumerates the wire protocol's error_code values.
type ErrorCode int

const (
	BadInitialization  ErrorCode = 0
	IncorrectType      ErrorCode = 1
	UnregisteredClient ErrorCode = 2
	InvalidTask        ErrorCode = 3
	ErrorInTask        ErrorCode = 4
	TaskTimeout        ErrorCode = 5
)

// Envelope is the wire-format top-level message: { id, client, type,
// arguments }.
type Envelope struct {
	ID        string          `json:"id"`
	Client    string          `json:"client"`
	Type      MessageType     `json:"type"`
	Arguments json.RawMessage `json:"arguments"`
}

// InitializationArgs is Envelope.Arguments for Type==Initialization.
type InitializationArgs struct {
	EnableOverdue bool `json:"enable_overdue"`
}

// InfoArgs is Envelope.Arguments for a Type==Info reply (0 == OK).
type InfoArgs struct {
	Responce int `json:"responce"`
}

// ErrorArgs is Envelope.Arguments for a Type==Error reply.
type ErrorArgs struct {
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
}

// TaskArgs is Envelope.Arguments for a Type==Task submission. Function is
// the registered handler name as a plain string; Args and Kwargs are
// base64-wrapped JSON and TimeToStart is base64-wrapped gob; see codec.go
// for the encoding.
type TaskArgs struct {
	Lifetime    int    `json:"lifetime"`
	Function    string `json:"function"`
	Args        string `json:"args"`
	Kwargs      string `json:"kwargs"`
	TimeToStart string `json:"time_to_start"`
	Hard        bool   `json:"hard"`
}

var (
	// ErrMalformedJSON is returned by Decode when body isn't valid JSON.
	ErrMalformedJSON = errors.New("tasks: malformed json")
	// ErrMalformedEnvelope is returned by Decode when a required top-level
	// field (id, client, type, arguments) is missing.
	ErrMalformedEnvelope = errors.New("tasks: malformed envelope")
)

// rawEnvelope lets Decode distinguish "field absent" from "field present
// but zero-valued", which json.Unmarshal into Envelope directly cannot do
// for a string-typed id/client.
type rawEnvelope struct {
	ID        *string          `json:"id"`
	Client    *string          `json:"client"`
	Type      *MessageType     `json:"type"`
	Arguments *json.RawMessage `json:"arguments"`
}

// Decode parses a wire envelope, failing with ErrMalformedJSON for
// non-JSON bytes or ErrMalformedEnvelope when id/client/type/arguments is
// missing.
func Decode(body []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s", ErrMalformedJSON, err)
	}
	if raw.ID == nil || raw.Client == nil || raw.Type == nil || raw.Arguments == nil {
		return Envelope{}, ErrMalformedEnvelope
	}
	return Envelope{
		ID:        *raw.ID,
		Client:    *raw.Client,
		Type:      *raw.Type,
		Arguments: *raw.Arguments,
	}, nil
}

// Encode serializes an envelope to its wire JSON form.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// NewInitialization builds an INITIALIZATION envelope.
func NewInitialization(id, client string, enableOverdue bool) (Envelope, error) {
	args, err := json.Marshal(InitializationArgs{EnableOverdue: enableOverdue})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Client: client, Type: Initialization, Arguments: args}, nil
}

// NewInfoOK builds the single successful INFO reply variant used by this
// protocol (responce == 0).
func NewInfoOK(id, client string) (Envelope, error) {
	args, err := json.Marshal(InfoArgs{Responce: 0})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Client: client, Type: Info, Arguments: args}, nil
}

// NewError builds an ERROR reply envelope.
func NewError(id, client string, code ErrorCode, message string) (Envelope, error) {
	args, err := json.Marshal(ErrorArgs{ErrorCode: code, Message: message})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Client: client, Type: Error, Arguments: args}, nil
}

// NewTask builds a TASK submission envelope from a handler name and
// already-serialized (base64) args/kwargs/time-to-start strings.
func NewTask(id, client string, a TaskArgs) (Envelope, error) {
	args, err := json.Marshal(a)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Client: client, Type: Task, Arguments: args}, nil
}
