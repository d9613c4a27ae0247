package revsentryrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc-go's encoding package and
// selected per-call via grpc.ForceCodec / grpc.CallContentSubtype, in
// place of the generated-protobuf codec grpc-go defaults to.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// mustJSONCodec is a guard used by tests to confirm registration
// happened; grpc-go looks codecs up by name at dial/serve time, so a
// typo here would otherwise fail silently until the first RPC.
func mustJSONCodec() {
	if encoding.GetCodec(jsonCodecName) == nil {
		panic(fmt.Sprintf("revsentryrpc: codec %q not registered", jsonCodecName))
	}
}
