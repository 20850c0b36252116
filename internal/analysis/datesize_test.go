package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mailsentinel/core/internal/domain"
)

func TestDateSizeAnalyzer_AgeCategoryBoundaries(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		ageDays  int
		expected domain.AgeCategory
	}{
		{"exactly 7 days is recent", 7, domain.AgeRecent},
		{"6 days is recent", 6, domain.AgeRecent},
		{"exactly 30 days is moderate", 30, domain.AgeModerate},
		{"8 days is moderate", 8, domain.AgeModerate},
		{"31 days is old", 31, domain.AgeOld},
	}

	a := NewDateSizeAnalyzer(nil, time.Minute, KeyPartial)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date := now.AddDate(0, 0, -tt.ageDays).UnixMilli()
			ec := NewContext("e1", "user1", "", "", "", nil, date, 0, false)
			result := a.Analyze(context.Background(), ec, now)
			assert.Equal(t, tt.expected, result.AgeCategory)
		})
	}
}

func TestDateSizeAnalyzer_SizeCategoryBoundaries(t *testing.T) {
	a := NewDateSizeAnalyzer(nil, time.Minute, KeyPartial)
	now := time.Now()

	tests := []struct {
		name     string
		size     int64
		expected domain.SizeCategory
	}{
		{"exactly 100 KiB is small", 100 * 1024, domain.SizeSmall},
		{"100 KiB + 1 byte is medium", 100*1024 + 1, domain.SizeMedium},
		{"exactly 1 MiB is medium", 1024 * 1024, domain.SizeMedium},
		{"10 MiB is large", 10 * 1024 * 1024, domain.SizeLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := NewContext("e1", "user1", "", "", "", nil, now.UnixMilli(), tt.size, false)
			result := a.Analyze(context.Background(), ec, now)
			assert.Equal(t, tt.expected, result.SizeCategory)
		})
	}
}

func TestDateSizeAnalyzer_RecencyScoreNotUpperClamped(t *testing.T) {
	a := NewDateSizeAnalyzer(nil, time.Minute, KeyPartial)
	now := time.Now()

	future := now.AddDate(0, 0, 30).UnixMilli()
	ec := NewContext("e1", "user1", "", "", "", nil, future, 0, false)
	result := a.Analyze(context.Background(), ec, now)
	assert.Greater(t, result.RecencyScore, 1.0)
}

func TestDateSizeAnalyzer_SizePenaltyClampedAndZeroForSmall(t *testing.T) {
	a := NewDateSizeAnalyzer(nil, time.Minute, KeyPartial)
	now := time.Now()

	small := NewContext("e1", "user1", "", "", "", nil, now.UnixMilli(), 1024, false)
	assert.Zero(t, a.Analyze(context.Background(), small, now).SizePenalty)

	huge := NewContext("e2", "user1", "", "", "", nil, now.UnixMilli(), 100*1024*1024, false)
	assert.Equal(t, 1.0, a.Analyze(context.Background(), huge, now).SizePenalty)
}
