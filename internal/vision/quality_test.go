package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

// uniformImage returns a solid-color frame.
func uniformImage(gray uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

// checkerImage alternates two gray levels to produce high contrast.
func checkerImage(lo, hi uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := lo
			if (x+y)%2 == 0 {
				v = hi
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestAssessQuality(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want Quality
	}{
		{"nil frame", nil, QualityInactive},
		{"too dark", uniformImage(10), QualityLowLight},
		{"blown out", uniformImage(250), QualityLowLight},
		{"flat midtone", uniformImage(128), QualityLowContrast},
		{"bright high contrast", checkerImage(40, 250), QualityHigh},
		{"moderate contrast", checkerImage(100, 160), QualityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssessQuality(tt.img))
		})
	}
}

func TestGrayStatsUniform(t *testing.T) {
	mean, stddev := grayStats(uniformImage(128))
	assert.InDelta(t, 128, mean, 1.0)
	assert.InDelta(t, 0, stddev, 0.5)
}
