package gatewaygrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/attackdeck/schema"
)

// messageIDField carries a per-message id used for log correlation only.
const messageIDField = "id"

// ToStruct converts a JSON-tagged value into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// FromStruct decodes a protobuf Struct into a JSON-tagged value.
func FromStruct(st *structpb.Struct, v any) error {
	if st == nil {
		return errors.New("nil struct")
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// EncodeOutbound converts a core message for the wire.
func EncodeOutbound(msg schema.OutboundMessage) (*structpb.Struct, error) {
	if err := validateOutbound(msg); err != nil {
		return nil, err
	}
	return ToStruct(msg)
}

// DecodeOutbound parses and validates a message received by the executor.
func DecodeOutbound(st *structpb.Struct) (schema.OutboundMessage, error) {
	var msg schema.OutboundMessage
	if err := FromStruct(st, &msg); err != nil {
		return schema.OutboundMessage{}, err
	}
	if err := validateOutbound(msg); err != nil {
		return schema.OutboundMessage{}, err
	}
	return msg, nil
}

// EncodeInbound converts an executor event for the wire.
func EncodeInbound(msg schema.InboundMessage) (*structpb.Struct, error) {
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return ToStruct(msg)
}

// DecodeInbound parses an executor event. Unknown types are rejected.
func DecodeInbound(st *structpb.Struct) (schema.InboundMessage, error) {
	var msg schema.InboundMessage
	if err := FromStruct(st, &msg); err != nil {
		return schema.InboundMessage{}, err
	}
	if !msg.Type.Valid() {
		return schema.InboundMessage{}, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return msg, nil
}

func validateOutbound(msg schema.OutboundMessage) error {
	if msg.TabID == "" {
		return errors.New("tabId is required")
	}
	switch msg.Type {
	case schema.MessageStop:
		return nil
	case schema.MessageExecute:
	case schema.MessageExecuteMulti:
		if msg.OutputID == "" {
			return errors.New("outputId is required for execute-multi")
		}
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	if msg.Command == "" {
		return errors.New("command is required")
	}
	return nil
}

func messageID(st *structpb.Struct) string {
	if st == nil {
		return ""
	}
	return st.GetFields()[messageIDField].GetStringValue()
}
