package core

// Split partitions items into consecutive chunks of at most size elements,
// keeping their order. Every chunk but the last has exactly size elements.
// An empty input yields no chunk. A size below 1 puts everything in one chunk.
func Split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = len(items)
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
