package pebbledb

// Tuple key encoding. Each field ends with a 0x00 terminator; a literal
// 0x00 inside a field is escaped as 0x00 0xFF. The encoding preserves
// lexicographic tuple order under plain byte comparison, so a field can
// never collide with or sort past its neighbor however the values are
// shaped.
// 元组键编码：每个字段以 0x00 结束，字段内的 0x00 转义为 0x00 0xFF。

const (
	fieldTerminator = 0x00
	escapeByte      = 0xFF
)

// EncodeTuple encodes the fields into one ordered key.
func EncodeTuple(fields ...string) []byte {
	size := 0
	for _, f := range fields {
		size += len(f) + 1
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		for i := 0; i < len(f); i++ {
			if f[i] == fieldTerminator {
				out = append(out, fieldTerminator, escapeByte)
				continue
			}
			out = append(out, f[i])
		}
		out = append(out, fieldTerminator)
	}
	return out
}

// DecodeTuple reverses EncodeTuple.
func DecodeTuple(key []byte) []string {
	var fields []string
	var cur []byte
	for i := 0; i < len(key); i++ {
		if key[i] != fieldTerminator {
			cur = append(cur, key[i])
			continue
		}
		if i+1 < len(key) && key[i+1] == escapeByte {
			cur = append(cur, fieldTerminator)
			i++
			continue
		}
		fields = append(fields, string(cur))
		cur = cur[:0]
	}
	return fields
}
