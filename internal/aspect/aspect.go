// Package aspect provides pure aspect-ratio fitting math for video frames.
//
// Both functions truncate the computed dimension to an integer rather than
// rounding, so results are always contained by (FitInside) or containing
// (FitOutside) the exact target ratio box.
package aspect

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// FitInside shrinks the larger dimension of s so the result matches the
// widthRatio:heightRatio aspect while staying within s. If s already has the
// exact target ratio it is returned unchanged.
//
// Precondition: s.Height > 0 and heightRatio > 0.
func FitInside(s Size, widthRatio, heightRatio int) Size {
	if s.Width*heightRatio == s.Height*widthRatio {
		return s
	}

	if s.Width*heightRatio > s.Height*widthRatio {
		// Too wide, shrink width
		return Size{Width: s.Height * widthRatio / heightRatio, Height: s.Height}
	}
	// Too tall, shrink height
	return Size{Width: s.Width, Height: s.Width * heightRatio / widthRatio}
}

// FitOutside grows the smaller dimension of s so the result matches the
// widthRatio:heightRatio aspect while covering s. If s already has the exact
// target ratio it is returned unchanged. The grown dimension rounds up, since
// truncating would leave a strip of s uncovered.
//
// Precondition: s.Height > 0 and heightRatio > 0.
func FitOutside(s Size, widthRatio, heightRatio int) Size {
	if s.Width*heightRatio == s.Height*widthRatio {
		return s
	}

	if s.Width*heightRatio > s.Height*widthRatio {
		// Too wide, grow height
		return Size{Width: s.Width, Height: ceilDiv(s.Width*heightRatio, widthRatio)}
	}
	// Too tall, grow width
	return Size{Width: ceilDiv(s.Height*widthRatio, heightRatio), Height: s.Height}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// FitInside16x9 fits s inside a 16:9 box.
func FitInside16x9(s Size) Size {
	return FitInside(s, 16, 9)
}

// FitOutside16x9 fits s outside a 16:9 box.
func FitOutside16x9(s Size) Size {
	return FitOutside(s, 16, 9)
}
