package analysis

// reverseDims returns dims in reverse order.
func reverseDims(dims []int) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		out[len(dims)-1-i] = d
	}
	return out
}

// transposeFloats relays a row-major array so that storing the result
// row-major under reversed dims yields the transposed array. Walking the
// output in order corresponds to walking the input with its first axis
// varying fastest.
func transposeFloats(src []float64, dims []int) []float64 {
	dst := make([]float64, len(src))
	idx := make([]int, len(dims))
	for p := range dst {
		off := 0
		for a, d := range dims {
			off = off*d + idx[a]
		}
		dst[p] = src[off]
		for a := range idx {
			idx[a]++
			if idx[a] < dims[a] {
				break
			}
			idx[a] = 0
		}
	}
	return dst
}

func transposeInts(src []int64, dims []int) []int64 {
	dst := make([]int64, len(src))
	idx := make([]int, len(dims))
	for p := range dst {
		off := 0
		for a, d := range dims {
			off = off*d + idx[a]
		}
		dst[p] = src[off]
		for a := range idx {
			idx[a]++
			if idx[a] < dims[a] {
				break
			}
			idx[a] = 0
		}
	}
	return dst
}

func transposeBytes(src []byte, dims []int) []byte {
	dst := make([]byte, len(src))
	idx := make([]int, len(dims))
	for p := range dst {
		off := 0
		for a, d := range dims {
			off = off*d + idx[a]
		}
		dst[p] = src[off]
		for a := range idx {
			idx[a]++
			if idx[a] < dims[a] {
				break
			}
			idx[a] = 0
		}
	}
	return dst
}
