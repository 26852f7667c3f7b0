package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/vigil/pkg/domain"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func snapshotAt(minute int) domain.Snapshot {
	return domain.Snapshot{
		Timestamp: epoch.Add(time.Duration(minute) * time.Minute),
		CPU:       domain.CPUMetrics{Usage: float64(minute)},
	}
}

func timestamps(snaps []domain.Snapshot) []int {
	out := make([]int, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, int(s.Timestamp.Sub(epoch)/time.Minute))
	}
	return out
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	const capacity = 5
	buf := NewBuffer(capacity)

	for i := 0; i < capacity+3; i++ {
		buf.Append(snapshotAt(i))
		assert.LessOrEqual(t, buf.Len(), capacity)
	}

	// N+k appends keep the N-k oldest survivors plus the k newest
	assert.Equal(t, []int{3, 4, 5, 6, 7}, timestamps(buf.Query(domain.TimeRange{})))
}

func TestBufferQueryBoundsAreInclusive(t *testing.T) {
	buf := NewBuffer(10)
	for i := 0; i < 10; i++ {
		buf.Append(snapshotAt(i))
	}

	got := buf.Query(domain.TimeRange{
		Start: epoch.Add(2 * time.Minute),
		End:   epoch.Add(5 * time.Minute),
	})
	assert.Equal(t, []int{2, 3, 4, 5}, timestamps(got))

	openStart := buf.Query(domain.TimeRange{End: epoch.Add(1 * time.Minute)})
	assert.Equal(t, []int{0, 1}, timestamps(openStart))

	openEnd := buf.Query(domain.TimeRange{Start: epoch.Add(8 * time.Minute)})
	assert.Equal(t, []int{8, 9}, timestamps(openEnd))
}

func TestBufferQueryIsRestartable(t *testing.T) {
	buf := NewBuffer(4)
	for i := 0; i < 6; i++ {
		buf.Append(snapshotAt(i))
	}

	r := domain.TimeRange{Start: epoch.Add(3 * time.Minute)}
	first := buf.Query(r)
	first[0].CPU.Usage = 999

	second := buf.Query(r)
	assert.Equal(t, timestamps(first), timestamps(second))
	assert.Equal(t, float64(3), second[0].CPU.Usage, "query results must not alias buffer storage")
}

func TestBufferLatest(t *testing.T) {
	buf := NewBuffer(3)
	_, ok := buf.Latest()
	assert.False(t, ok)

	for i := 0; i < 7; i++ {
		buf.Append(snapshotAt(i))
	}
	latest, ok := buf.Latest()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(6*time.Minute), latest.Timestamp)
	assert.Equal(t, 3, buf.Cap())
}

func TestBufferDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewBuffer(0).Cap())
	assert.Equal(t, DefaultCapacity, NewBuffer(-4).Cap())
}
