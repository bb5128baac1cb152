package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartition_Reconstructs(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 20, 21, 100} {
		for _, size := range []int{1, 3, 7, 20, 1000} {
			items := make([]int, n)
			for i := range items {
				items[i] = i
			}

			batches := Partition(items, size)
			assert.Len(t, batches, (n+size-1)/size, "n=%d size=%d", n, size)

			var joined []int
			for i, b := range batches {
				if i < len(batches)-1 {
					assert.Len(t, b, size, "n=%d size=%d batch=%d", n, size, i)
				} else {
					assert.LessOrEqual(t, len(b), size)
					assert.NotEmpty(t, b)
				}
				joined = append(joined, b...)
			}
			if n == 0 {
				assert.Empty(t, joined)
			} else {
				assert.Equal(t, items, joined, "n=%d size=%d", n, size)
			}
		}
	}
}

func TestPartition_DefaultSize(t *testing.T) {
	items := make([]struct{}, DefaultBatchSize+1)
	batches := Partition(items, 0)
	assert.Len(t, batches, 2)
	assert.Len(t, batches[0], DefaultBatchSize)
	assert.Len(t, batches[1], 1)
}

func TestPartition_BatchesDoNotOverlap(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	batches := Partition(items, 2)

	batches[0] = append(batches[0], 99)
	assert.Equal(t, []int{3, 4}, batches[1])
}
