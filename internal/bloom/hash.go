package bloom

// hashes returns FNV-1a, djb2 and sdbm of s, computed in one pass.
func hashes(s string) (fnv, djb2, sdbm uint32) {
	fnv = 2166136261
	djb2 = 5381
	for i := 0; i < len(s); i++ {
		c := uint32(s[i])
		fnv ^= c
		fnv *= 16777619
		djb2 = djb2<<5 + djb2 + c
		sdbm = c + sdbm<<6 + sdbm<<16 - sdbm
	}
	return fnv, djb2, sdbm
}
