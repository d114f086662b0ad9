package parser

// SearchWindow returns the first item in items[start:start+size] accepted
// by match, with its index. The window is clamped to the slice bounds.
func SearchWindow[T any](items []T, start, size int, match func(T) bool) (T, int, bool) {
	var zero T
	if start < 0 {
		start = 0
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	for i := start; i < end; i++ {
		if match(items[i]) {
			return items[i], i, true
		}
	}
	return zero, -1, false
}
