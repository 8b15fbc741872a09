package counter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKey(t *testing.T) {
	local := time.FixedZone("CST", 8*3600)
	ts := time.Date(2026, 10, 14, 1, 30, 0, 0, local)
	assert.Equal(t, "membership:counters:2026-10-13", dayKey(ts))
}

func TestParseValuesSkipsGarbage(t *testing.T) {
	got := parseValues(map[string]string{OrdersPaid: "3", "bad": "x"})
	assert.Equal(t, map[string]int64{OrdersPaid: 3}, got)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.Add(context.Background(), OrdersCreated, 1)
}
