package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected string
	}{
		{"normal", 45.7, "45.7 calls/s"},
		{"zero", 0.0, "0.0 calls/s"},
		{"small", 0.1, "0.1 calls/s"},
		{"very_small", 0.0001, "0.0 calls/s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRate(tt.rate))
		})
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{"zero", 0, "0.0µs"},
		{"microseconds", 250 * time.Microsecond, "250.0µs"},
		{"milliseconds", 12300 * time.Microsecond, "12.3ms"},
		{"seconds", 1234 * time.Millisecond, "1.2s"},
		{"large", 123456 * time.Millisecond, "123.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatLatency(tt.d))
		})
	}
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "0.0%", FormatPercentage(0))
	assert.Equal(t, "12.5%", FormatPercentage(0.125))
	assert.Equal(t, "100.0%", FormatPercentage(1))
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n        uint64
		expected string
	}{
		{0, "0"},
		{9999, "9999"},
		{12345, "12.3k"},
		{2500000, "2.5M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatCount(tt.n))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Order…", truncate("OrderService.Place", 6))
	assert.Equal(t, "…", truncate("abc", 1))
	assert.Equal(t, "abc", truncate("abc", 0))
}
