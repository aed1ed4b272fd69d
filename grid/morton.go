package grid

// Morton3 interleaves the low 21 bits of i, j and k into a Z-order key with i in the lowest bit.
func Morton3(i, j, k uint32) uint64 {
	return expand3(i) | expand3(j)<<1 | expand3(k)<<2
}

func expand3(v uint32) uint64 {
	x := uint64(v) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}
