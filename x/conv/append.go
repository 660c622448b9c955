// Package conv formats integers into caller-owned buffers without fmt or
// strconv, for log lines built on the MCU.
package conv

// AppendUint appends the base-10 form of n to dst.
func AppendUint(dst []byte, n uint64) []byte {
	var tmp [20]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(dst, tmp[i:]...)
}

// AppendInt appends the base-10 form of n to dst.
func AppendInt(dst []byte, n int64) []byte {
	if n < 0 {
		dst = append(dst, '-')
		return AppendUint(dst, uint64(-(n+1))+1)
	}
	return AppendUint(dst, uint64(n))
}

// AppendMilli appends n/1000 with three decimals, e.g. 21500 -> "21.500".
func AppendMilli(dst []byte, n int32) []byte {
	v := int64(n)
	if v < 0 {
		dst = append(dst, '-')
		v = -v
	}
	dst = AppendUint(dst, uint64(v/1000))
	frac := v % 1000
	dst = append(dst, '.', byte('0'+frac/100), byte('0'+frac/10%10), byte('0'+frac%10))
	return dst
}
