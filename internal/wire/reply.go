package wire

import "encoding/binary"

// EncodeReturnCode applies the wire's offset-binary encoding to a handler's
// signed return value: the transmitted value is ret + 2^31. This lets a
// reply's return-code field be transmitted as an unsigned 32-bit integer
// while still covering the full range of a 32-bit errno magnitude on either
// side of zero.
//
// Every int32 fits once biased, so this function cannot overflow. The
// narrowing of a backend errno to int32 happens before it is called
// (errnoToRet in internal/server) and is not range-checked.
func EncodeReturnCode(ret int32) uint32 {
	return uint32(int64(ret) + replyBias)
}

// DecodeReturnCode reverses EncodeReturnCode.
func DecodeReturnCode(wireRet uint32) int32 {
	return int32(int64(wireRet) - replyBias)
}

// PutReplyHeader writes an 8-byte reply header into b[0:ReplyHeaderSize]:
// the offset-binary return code followed by the body length.
func PutReplyHeader(b []byte, ret int32, bodyLen uint32) {
	binary.BigEndian.PutUint32(b[0:], EncodeReturnCode(ret))
	binary.BigEndian.PutUint32(b[4:], bodyLen)
}

// GetReplyHeader decodes an 8-byte reply header from the start of b.
func GetReplyHeader(b []byte) (ret int32, bodyLen uint32, err error) {
	rawRet, err := GetUint32(b[0:])
	if err != nil {
		return 0, 0, err
	}
	bodyLen, err = GetUint32(b[4:])
	if err != nil {
		return 0, 0, err
	}
	return DecodeReturnCode(rawRet), bodyLen, nil
}

// PutRequestHeader writes a 6-byte request header into b[0:FrameHeaderSize]:
// the body length followed by the operation id.
func PutRequestHeader(b []byte, bodyLen uint32, op OpID) {
	binary.BigEndian.PutUint32(b[0:], bodyLen)
	binary.BigEndian.PutUint16(b[4:], uint16(op))
}

// GetRequestHeader decodes a 6-byte request header from the start of b.
func GetRequestHeader(b []byte) (bodyLen uint32, op OpID, err error) {
	bodyLen, err = GetUint32(b[0:])
	if err != nil {
		return 0, 0, err
	}
	opRaw, err := GetUint16(b[4:])
	if err != nil {
		return 0, 0, err
	}
	return bodyLen, OpID(opRaw), nil
}

// DirEntryHeaderSize is the fixed portion of a readdir entry preceding the
// variable-length name: 13 stat fields, an 8-byte cookie/offset, and a
// 4-byte name length.
const DirEntryHeaderSize = StatSize + 8 + 4

// EncodeDirEntry appends one directory entry to dst in the wire layout:
// 13×u32 stat | u64 offset | u32 name_len | name | 0x00.
func EncodeDirEntry(dst []byte, st Stat, offset uint64, name string) ([]byte, error) {
	var statBuf [StatSize]byte
	if err := EncodeStat(statBuf[:], st); err != nil {
		return nil, err
	}
	dst = append(dst, statBuf[:]...)

	var u64Buf [8]byte
	binary.BigEndian.PutUint64(u64Buf[:], offset)
	dst = append(dst, u64Buf[:]...)

	var u32Buf [4]byte
	binary.BigEndian.PutUint32(u32Buf[:], uint32(len(name)))
	dst = append(dst, u32Buf[:]...)

	dst = append(dst, name...)
	dst = append(dst, 0x00)
	return dst, nil
}
