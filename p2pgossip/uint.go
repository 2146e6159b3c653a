package p2pgossip

import "math/big"

// bigIntField packs *big.Int into marshalUserOp's fixed slots as a
// 32-byte little-endian integer, SSZ's native basic-type encoding for
// uint256.
type bigIntField struct {
	v *big.Int
}

func (f *bigIntField) putInto(dst []byte) {
	v := f.v
	if v == nil {
		v = new(big.Int)
	}
	be := v.Bytes()
	for i, j := 0, len(be)-1; i < len(be); i, j = i+1, j-1 {
		dst[i] = be[j]
	}
}

// bigIntFieldPtr is the decode-side counterpart of bigIntField.
type bigIntFieldPtr struct {
	v *big.Int
}

func (f *bigIntFieldPtr) takeFrom(src []byte) {
	be := make([]byte, len(src))
	for i, j := 0, len(src)-1; i < len(src); i, j = i+1, j-1 {
		be[i] = src[j]
	}
	f.v = new(big.Int).SetBytes(be)
}
