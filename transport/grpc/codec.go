package grpc

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xmh1011/raft-sim/param"
)

// ErrMalformedMessage is returned when a wire message cannot be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// Wire field names. 64-bit counters travel as decimal strings because
// structpb numbers are float64.
const (
	fieldKind      = "kind"
	fieldTerm      = "term"
	fieldSender    = "sender"
	fieldIndex     = "index"
	fieldEntryTerm = "entry_term"
	fieldData      = "data"
	fieldSentAt    = "sent_at"
)

func encodeMessage(msg param.Message) (*structpb.Struct, error) {
	fields := map[string]any{
		fieldKind:      msg.Kind.String(),
		fieldTerm:      strconv.FormatUint(msg.Term, 10),
		fieldSender:    msg.SenderID,
		fieldIndex:     strconv.FormatUint(msg.Payload.Index, 10),
		fieldEntryTerm: strconv.FormatUint(msg.Payload.Term, 10),
		fieldData:      msg.Payload.Data,
	}
	if !msg.SentAt.IsZero() {
		fields[fieldSentAt] = msg.SentAt.UTC().Format(time.RFC3339Nano)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	return s, nil
}

func decodeMessage(s *structpb.Struct) (param.Message, error) {
	fields := s.GetFields()

	kind := param.ParseKind(fields[fieldKind].GetStringValue())
	if kind == param.KindUnknown {
		return param.Message{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, fields[fieldKind].GetStringValue())
	}

	sender, ok := fields[fieldSender].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return param.Message{}, fmt.Errorf("%w: missing %s", ErrMalformedMessage, fieldSender)
	}

	term, err := uintField(fields, fieldTerm)
	if err != nil {
		return param.Message{}, err
	}
	index, err := uintField(fields, fieldIndex)
	if err != nil {
		return param.Message{}, err
	}
	entryTerm, err := uintField(fields, fieldEntryTerm)
	if err != nil {
		return param.Message{}, err
	}

	var sentAt time.Time
	if raw := fields[fieldSentAt].GetStringValue(); raw != "" {
		sentAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return param.Message{}, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, fieldSentAt, err)
		}
	}

	return param.Message{
		Kind:     kind,
		Term:     term,
		Payload:  param.NewLogEntry(index, entryTerm, fields[fieldData].GetStringValue()),
		SenderID: int(sender.NumberValue),
		SentAt:   sentAt,
	}, nil
}

func uintField(fields map[string]*structpb.Value, name string) (uint64, error) {
	raw := fields[name].GetStringValue()
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, name, err)
	}
	return v, nil
}
