package request

// MaxKeyLength is the maximum key size accepted by the memcached text
// protocol.
const MaxKeyLength = 250

// IsValidKey reports whether key is an acceptable cache key: non-empty, no
// longer than MaxKeyLength, and free of whitespace/control bytes.
//
// Folded in from the teacher's protocol.IsValidKey — the standalone
// protocol package otherwise duplicated meta's constants wholesale, so it
// is not carried forward as its own package.
func IsValidKey(key string) bool {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		if b <= 32 || b == 127 {
			return false
		}
	}
	return true
}
