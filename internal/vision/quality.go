package vision

import "image"

// Quality is a coarse assessment of how usable a frame is for recognition.
type Quality string

const (
	QualityInactive    Quality = "inactive"
	QualityLowLight    Quality = "low-light"
	QualityLowContrast Quality = "low-contrast"
	QualityHigh        Quality = "high"
	QualityMedium      Quality = "medium"
)

// AssessQuality buckets a frame by its luma statistics. Very dark or
// blown-out frames read as low-light, flat frames as low-contrast.
func AssessQuality(img image.Image) Quality {
	if img == nil {
		return QualityInactive
	}

	brightness, contrast := grayStats(img)

	switch {
	case brightness < 40 || brightness > 220:
		return QualityLowLight
	case contrast < 20:
		return QualityLowContrast
	case contrast > 80 && brightness > 100:
		return QualityHigh
	default:
		return QualityMedium
	}
}
