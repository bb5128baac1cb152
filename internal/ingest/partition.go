package ingest

// DefaultBatchSize is the number of records committed per transaction when
// no batch size is configured.
const DefaultBatchSize = 20000

// Partition splits items into contiguous batches of at most size elements,
// preserving order. The last batch holds the remainder. A non-positive size
// selects DefaultBatchSize. The batches share the backing array of items.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(items) == 0 {
		return nil
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}
