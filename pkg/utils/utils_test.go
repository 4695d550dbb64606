package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDaysInStage(t *testing.T) {
	entered := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		entered  time.Time
		now      time.Time
		expected int
	}{
		{
			name:     "same moment",
			entered:  entered,
			now:      entered,
			expected: 0,
		},
		{
			name:     "just under one day",
			entered:  entered,
			now:      entered.Add(23 * time.Hour),
			expected: 0,
		},
		{
			name:     "three and a half days",
			entered:  entered,
			now:      entered.Add(84 * time.Hour),
			expected: 3,
		},
		{
			name:     "clock skew returns zero",
			entered:  entered,
			now:      entered.Add(-time.Hour),
			expected: 0,
		},
		{
			name:     "zero entered time",
			entered:  time.Time{},
			now:      entered,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DaysInStage(tt.entered, tt.now))
		})
	}
}

func TestIsSLABreached(t *testing.T) {
	assert.False(t, IsSLABreached(5, 5))
	assert.True(t, IsSLABreached(6, 5))
	assert.False(t, IsSLABreached(100, 0))
}

func TestPercentageOf(t *testing.T) {
	tests := []struct {
		name     string
		part     decimal.Decimal
		whole    decimal.Decimal
		expected decimal.Decimal
	}{
		{
			name:     "sixty percent",
			part:     decimal.NewFromInt(6000),
			whole:    decimal.NewFromInt(10000),
			expected: decimal.NewFromInt(60),
		},
		{
			name:     "whole amount",
			part:     decimal.NewFromInt(10000),
			whole:    decimal.NewFromInt(10000),
			expected: decimal.NewFromInt(100),
		},
		{
			name:     "zero whole",
			part:     decimal.NewFromInt(5),
			whole:    decimal.Zero,
			expected: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PercentageOf(tt.part, tt.whole)
			assert.True(t, result.Equal(tt.expected), "Expected %v, but got %v", tt.expected, result)
		})
	}
}

func TestAmountFromPercentage(t *testing.T) {
	result := AmountFromPercentage(decimal.RequireFromString("33.333"), decimal.NewFromInt(10000))
	assert.True(t, result.Equal(decimal.RequireFromString("3333.3")), "got %v", result)
}

func TestClamp(t *testing.T) {
	lo, hi := decimal.Zero, decimal.NewFromInt(100)

	assert.True(t, Clamp(decimal.NewFromInt(-1), lo, hi).Equal(lo))
	assert.True(t, Clamp(decimal.NewFromInt(101), lo, hi).Equal(hi))
	assert.True(t, Clamp(decimal.NewFromInt(42), lo, hi).Equal(decimal.NewFromInt(42)))
}
