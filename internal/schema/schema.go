package schema

// SchemaVersion is the current capture frame schema version.
const SchemaVersion uint16 = 1

// FrameType defines the category of a frame stored in a capture.
type FrameType uint16

const (
	FrameUnknown FrameType = iota
	FrameRequest
	FrameRecord
)

func (t FrameType) String() string {
	switch t {
	case FrameRequest:
		return "Request"
	case FrameRecord:
		return "Record"
	default:
		return "Unknown"
	}
}

// FrameHeader is the metadata attached to every captured frame.
type FrameHeader struct {
	Type     FrameType
	Version  uint16
	CallType CallType
	Index    uint32
	TsRecv   int64
	TraceID  uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(frameType FrameType, callType CallType, index uint32, tsRecv int64, traceID uint64) FrameHeader {
	return FrameHeader{
		Type:     frameType,
		Version:  SchemaVersion,
		CallType: callType,
		Index:    index,
		TsRecv:   tsRecv,
		TraceID:  traceID,
	}
}
