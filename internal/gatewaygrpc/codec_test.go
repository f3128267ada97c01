package gatewaygrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/attackdeck/schema"
)

func TestOutboundCodec(t *testing.T) {
	msg := schema.OutboundMessage{
		Type:             schema.MessageExecuteMulti,
		TabID:            "tab-1",
		Command:          "./build/nr-gnb -c config/open5gs-gnb.yaml",
		OutputID:         "gnb",
		WorkingDirectory: "/opt/UERANSIM",
		Parameters:       schema.Parameters{"amf-address": "10.0.0.5"},
	}
	st, err := EncodeOutbound(msg)
	require.NoError(t, err)
	require.Equal(t, "execute-multi", st.GetFields()["type"].GetStringValue())
	require.Equal(t, "gnb", st.GetFields()["outputId"].GetStringValue())
	require.Equal(t, "10.0.0.5", st.GetFields()["parameters"].GetStructValue().GetFields()["amf-address"].GetStringValue())

	decoded, err := DecodeOutbound(st)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestOutboundValidation(t *testing.T) {
	cases := []schema.OutboundMessage{
		{Type: schema.MessageExecute, Command: "id"},
		{Type: schema.MessageExecute, TabID: "t"},
		{Type: schema.MessageExecuteMulti, TabID: "t", Command: "id"},
		{Type: "launch", TabID: "t", Command: "id"},
	}
	for _, msg := range cases {
		_, err := EncodeOutbound(msg)
		require.Error(t, err, "message %+v", msg)
	}
	_, err := EncodeOutbound(schema.OutboundMessage{Type: schema.MessageStop, TabID: "t"})
	require.NoError(t, err)
}

func TestInboundCodec(t *testing.T) {
	st, err := structpb.NewStruct(map[string]any{
		"type":    "notification",
		"tabId":   "tab-9",
		"message": "image pulled",
		"extra":   true,
	})
	require.NoError(t, err)
	msg, err := DecodeInbound(st)
	require.NoError(t, err)
	require.Equal(t, schema.InboundMessage{Type: schema.EventNotification, TabID: "tab-9", Message: "image pulled"}, msg)
	require.Equal(t, "image pulled", msg.Text())

	bad, err := structpb.NewStruct(map[string]any{"type": "telemetry", "tabId": "x"})
	require.NoError(t, err)
	_, err = DecodeInbound(bad)
	require.Error(t, err)

	_, err = EncodeInbound(schema.InboundMessage{Type: "telemetry"})
	require.Error(t, err)
}

func TestMessageID(t *testing.T) {
	st, err := EncodeOutbound(schema.OutboundMessage{Type: schema.MessageStop, TabID: "t"})
	require.NoError(t, err)
	require.Empty(t, messageID(st))
	st.Fields[messageIDField] = structpb.NewStringValue("abc")
	require.Equal(t, "abc", messageID(st))
	require.Empty(t, messageID(nil))
}
