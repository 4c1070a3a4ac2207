package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts a JSON-serialisable value into a structpb.Struct by way
// of its JSON form, so field names match the JSON API exactly.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// decodeBody fills dst from a JSON body or, for protobuf requests, from an
// encoded structpb.Struct with the same field names.
func decodeBody(r *http.Request, dst any) error {
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			return err
		}
		data, err := json.Marshal(msg.AsMap())
		if err != nil {
			return err
		}
		return json.Unmarshal(data, dst)
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// settingValue accepts "250", 250 or true for a setting value and returns
// its string form.
type settingValue struct {
	Value json.RawMessage `json:"value"`
}

func (v settingValue) String() (string, error) {
	if len(v.Value) == 0 || string(v.Value) == "null" {
		return "", fmt.Errorf("value is required")
	}
	var raw any
	if err := json.Unmarshal(v.Value, &raw); err != nil {
		return "", err
	}
	switch x := raw.(type) {
	case string:
		if x == "" {
			return "", fmt.Errorf("value is required")
		}
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("value must be a string, number or boolean")
	}
}
