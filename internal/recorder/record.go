package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"pricefeed/internal/schema"

	"github.com/yanun0323/errors"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 40
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'P', 'F', 'C', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("capture invalid magic")
	ErrUnsupportedRecordVer    = errors.New("capture unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("capture invalid header size")
)

// Layout (little endian):
//
//	0  magic      4
//	4  version    2
//	6  headerSize 2
//	8  frameType  2
//	10 schemaVer  2
//	12 callType   1
//	13 reserved   3
//	16 payloadLen 4
//	20 index      4
//	24 tsRecv     8
//	32 traceID    8
func encodeHeader(dst []byte, header schema.FrameHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(header.Type))
	binary.LittleEndian.PutUint16(dst[10:12], header.Version)
	dst[12] = byte(header.CallType)
	dst[13], dst[14], dst[15] = 0, 0, 0
	binary.LittleEndian.PutUint32(dst[16:20], uint32(payloadLen))
	binary.LittleEndian.PutUint32(dst[20:24], header.Index)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(header.TsRecv))
	binary.LittleEndian.PutUint64(dst[32:40], header.TraceID)
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (schema.FrameHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.FrameHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.FrameHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return schema.FrameHeader{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return schema.FrameHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	payloadLen := binary.LittleEndian.Uint32(src[16:20])
	h := schema.FrameHeader{
		Type:     schema.FrameType(binary.LittleEndian.Uint16(src[8:10])),
		Version:  binary.LittleEndian.Uint16(src[10:12]),
		CallType: schema.CallType(src[12]),
		Index:    binary.LittleEndian.Uint32(src[20:24]),
		TsRecv:   int64(binary.LittleEndian.Uint64(src[24:32])),
		TraceID:  binary.LittleEndian.Uint64(src[32:40]),
	}
	return h, payloadLen, nil
}
