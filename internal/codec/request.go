package codec

import "pricefeed/internal/schema"

const RequestSize = 2

// EncodeRequest serializes a request into its two byte frame.
func EncodeRequest(dst []byte, req schema.Request) []byte {
	if cap(dst) < RequestSize {
		dst = make([]byte, RequestSize)
	} else {
		dst = dst[:RequestSize]
	}

	dst[0] = byte(req.CallType)
	dst[1] = req.Param

	return dst
}

// DecodeRequest parses a two byte request frame.
func DecodeRequest(src []byte) (schema.Request, bool) {
	if len(src) < RequestSize {
		return schema.Request{}, false
	}
	return schema.Request{
		CallType: schema.CallType(src[0]),
		Param:    src[1],
	}, true
}
