package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in), "FormatBytes(%d)", tt.in)
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "calculating..."},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + time.Minute + time.Second, "2h 1m 1s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatETA(tt.in), "FormatETA(%v)", tt.in)
	}
}

func TestFormatThroughput(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12, "12/s"},
		{1500, "1.5K/s"},
		{2_500_000, "2.5M/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatThroughput(tt.in), "FormatThroughput(%v)", tt.in)
	}
}

func TestProgressPercentage(t *testing.T) {
	p := NewProgressTracker(1000, "ways").Calculate(10, 250)
	assert.Equal(t, float64(25), p.Percentage)
	assert.Equal(t, int64(1000), p.Total)
	assert.Equal(t, int64(10), p.Current)
}
