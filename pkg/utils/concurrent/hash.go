package concurrent

import "hash/fnv"

// HashString 针对 string 键的 FNV-1a 哈希，分布均匀
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// HashInt 针对 int 键的乘法哈希，避免顺序键集中到同一分片
func HashInt(key int) uint32 {
	return uint32(key) * 2654435761
}
