// Package serializer encodes protocol packets for the bus.
package serializer

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	jsoncodec "github.com/drblury/nodeflow/internal/runtime/jsoncodec"
)

const (
	NameJSON  = "json"
	NameProto = "proto"
)

// Serializer turns packets into bytes and back.
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// New returns the serializer registered under name. An empty name selects JSON.
func New(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		return JSON{}, nil
	case NameProto:
		return Proto{}, nil
	default:
		return nil, fmt.Errorf("unsupported serializer %q", name)
	}
}

// JSON encodes packets as JSON documents.
type JSON struct{}

func (JSON) Name() string { return NameJSON }

func (JSON) Marshal(v any) ([]byte, error) {
	return jsoncodec.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return jsoncodec.Unmarshal(data, v)
}

// Proto encodes packets as a binary google.protobuf.Value built from the
// packet's JSON form, so field names stay identical across serializers.
type Proto struct{}

func (Proto) Name() string { return NameProto }

func (Proto) Marshal(v any) ([]byte, error) {
	doc, err := jsoncodec.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := jsoncodec.Unmarshal(doc, &generic); err != nil {
		return nil, err
	}
	value, err := structpb.NewValue(generic)
	if err != nil {
		return nil, fmt.Errorf("build proto value: %w", err)
	}
	return proto.Marshal(value)
}

func (Proto) Unmarshal(data []byte, v any) error {
	var value structpb.Value
	if err := proto.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("decode proto value: %w", err)
	}
	if value.GetKind() == nil {
		return fmt.Errorf("decode proto value: empty message")
	}
	doc, err := jsoncodec.Marshal(value.AsInterface())
	if err != nil {
		return err
	}
	return jsoncodec.Unmarshal(doc, v)
}
