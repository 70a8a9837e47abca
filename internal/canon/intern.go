package canon

import "sync"

// internPool deduplicates ticker strings so every carrier of a
// LevelUpdated/TradeEvent holds a pointer to the same backing string
// instead of allocating its own copy on every parse.
var internPool sync.Map // map[string]*string

// Intern returns a shared, read-only *string for s, allocating one on first
// use. Safe for concurrent use from multiple venue sessions.
func Intern(s string) *string {
	if v, ok := internPool.Load(s); ok {
		return v.(*string)
	}
	ptr := new(string)
	*ptr = s
	actual, _ := internPool.LoadOrStore(s, ptr)
	return actual.(*string)
}
