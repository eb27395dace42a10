package ws

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Negotiated subprotocols. JSON is the default when a client asks for none.
const (
	ProtocolJSON     = "gexflow.json.v1"
	ProtocolProtobuf = "gexflow.protobuf.v1"
)

// Upstream message types for internal routing
type (
	joinGroupRequest struct {
		group string
		ackID *uint64
	}
	leaveGroupRequest struct {
		group string
		ackID *uint64
	}
	pingRequest struct{}
)

// parseUpstreamMessage parses a protobuf-encoded google.protobuf.Struct
// carrying the same fields as the JSON form.
func parseUpstreamMessage(data []byte) (any, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}
	return routeUpstream(msg.AsMap())
}

// parseUpstreamMessageJSON parses a JSON-encoded upstream message.
func parseUpstreamMessageJSON(data []byte) (any, error) {
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal JSON upstream message: %w", err)
	}
	return routeUpstream(msg)
}

func routeUpstream(msg map[string]interface{}) (any, error) {
	msgType, _ := msg["type"].(string)
	group, _ := msg["group"].(string)

	var ackID *uint64
	if v, ok := msg["ackId"].(float64); ok && v >= 0 {
		id := uint64(v)
		ackID = &id
	}

	switch msgType {
	case "joinGroup":
		return &joinGroupRequest{group: group, ackID: ackID}, nil
	case "leaveGroup":
		return &leaveGroupRequest{group: group, ackID: ackID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", msgType)
	}
}

// buildMessage renders a control message for the given protocol.
func buildMessage(protocol string, fields map[string]interface{}) []byte {
	if protocol == ProtocolProtobuf {
		s, err := structpb.NewStruct(fields)
		if err != nil {
			return nil
		}
		data, _ := proto.Marshal(s)
		return data
	}
	data, _ := json.Marshal(fields)
	return data
}

func buildConnectedMessage(protocol, connectionID string, groups []string) []byte {
	joined := make([]interface{}, len(groups))
	for i, g := range groups {
		joined[i] = g
	}
	return buildMessage(protocol, map[string]interface{}{
		"type":         "system",
		"event":        "connected",
		"connectionId": connectionID,
		"groups":       joined,
	})
}

func buildAckMessage(protocol string, ackID uint64, success bool) []byte {
	return buildMessage(protocol, map[string]interface{}{
		"type":    "ack",
		"ackId":   float64(ackID),
		"success": success,
	})
}

func buildPongMessage(protocol string) []byte {
	return buildMessage(protocol, map[string]interface{}{"type": "pong"})
}
