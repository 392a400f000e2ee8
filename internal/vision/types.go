package vision

import (
	"image"
	"time"
)

// Box is a detected face region in (x, y, w, h) pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Frame is one captured camera frame. JPEG holds the encoded bytes as
// they came off the camera pipe; Image is the decoded pixels.
type Frame struct {
	Image      image.Image
	JPEG       []byte
	CapturedAt time.Time
}

// Sample is one gallery entry: a stored embedding and its owner.
type Sample struct {
	UserID    int64
	Embedding []float32
}
