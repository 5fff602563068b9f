package wasmbuild

// EncodeUint32 encodes v as unsigned LEB128.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#integers%E2%91%A4
func EncodeUint32(v uint32) []byte {
	return encodeUint64(uint64(v))
}

// EncodeInt32 encodes v as signed LEB128, as used by i32.const.
func EncodeInt32(v int32) []byte {
	return encodeInt64(int64(v))
}

func encodeUint64(v uint64) (buf []byte) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			return
		}
	}
}

func encodeInt64(v int64) (buf []byte) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		// The sign bit of the last group must match the remaining value.
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}
