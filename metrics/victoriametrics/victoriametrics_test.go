package victoriametrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/arenamap"
	"github.com/hupe1980/arenamap/serializer"
)

func TestCollector_Exposition(t *testing.T) {
	c := New()

	c.RecordGet(time.Millisecond, true, nil)
	c.RecordGet(time.Millisecond, false, errors.New("boom"))
	c.RecordPut(time.Millisecond, nil)
	c.RecordRemove(time.Millisecond, nil)
	c.RecordCompute(time.Millisecond, true, nil)
	c.RecordScan(42, time.Millisecond)

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `arenamap_gets_total 2`)
	assert.Contains(t, out, `arenamap_get_hits_total 1`)
	assert.Contains(t, out, `arenamap_get_errors_total 1`)
	assert.Contains(t, out, `arenamap_puts_total 1`)
	assert.Contains(t, out, `arenamap_removes_total 1`)
	assert.Contains(t, out, `arenamap_computes_applied_total 1`)
	assert.Contains(t, out, `arenamap_scan_entries_total 42`)
}

func TestCollector_WiredIntoMap(t *testing.T) {
	c := New()
	m, err := arenamap.Uint64Keys[uint64](serializer.Uint64{}).
		Capacity(8 << 20).
		Metrics(c).
		Build()
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Put(1, 10))
	_, _, err = m.Get(1)
	require.NoError(t, err)

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()

	assert.True(t, strings.Contains(out, `arenamap_puts_total 1`), out)
	assert.True(t, strings.Contains(out, `arenamap_gets_total 1`), out)
}
