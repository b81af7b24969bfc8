// ABOUTME: A-law companding primitives
// ABOUTME: Maps 16-bit linear samples to one sign/segment/mantissa byte and back
package audio

// EncodeALaw compands a linear sample to one byte.
//
// Layout of the result is s|ppp|wxyz: sign, segment (position of the highest
// set bit among the 11 most significant magnitude bits) and the 4 bits
// following it. No even-bit inversion is applied.
func EncodeALaw(linear int16) byte {
	var sign byte
	magnitude := int32(linear)
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
		if magnitude > MaxInt16 {
			magnitude = MaxInt16
		}
	}

	sample11 := (magnitude >> 4) & 0x7ff
	prefix := 7
	tmp := sample11
	for prefix > 0 && tmp&0x400 == 0 {
		prefix--
		tmp <<= 1
	}

	var wxyz int32
	if prefix == 0 {
		wxyz = sample11 & 0xf
	} else {
		wxyz = (tmp >> 6) & 0xf
	}

	return sign | byte(prefix<<4) | byte(wxyz)
}

// DecodeALaw expands a companded byte back to a linear sample
func DecodeALaw(alaw byte) int16 {
	prefix := int32(alaw>>4) & 7
	wxyz := int32(alaw) & 0xf

	var res int32
	if prefix == 0 {
		res = wxyz << 4
	} else {
		res = (0x10 | wxyz) << (prefix + 3)
	}
	if alaw&0x80 != 0 {
		res = -res
	}
	return int16(res)
}

// ALawStep returns the quantization step of the segment a sample falls in
func ALawStep(linear int16) int {
	prefix := (EncodeALaw(linear) >> 4) & 7
	if prefix == 0 {
		return 16
	}
	return 1 << (prefix + 3)
}
