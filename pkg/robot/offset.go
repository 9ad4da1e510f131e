package robot

// ComputeOffset returns the homing offset for a joint whose home pose
// reads raw on an encoder wrapping at modulus. The offset is chosen so
// that Calibrated(raw, offset, modulus) == modulus/2 and is normalized
// into [-(modulus/2-1), modulus/2-1], the magnitude range of the servo's
// sign-magnitude offset register. The antipodal pose (raw == 0) would
// need modulus/2, which the register cannot hold; it is folded to
// modulus/2-1, biasing that single home sample by one count instead of
// letting the firmware write truncate to zero. Recomputing from the same
// raw sample yields the same offset.
func ComputeOffset(raw, modulus int) int {
	half := modulus / 2
	offset := wrap(raw-half, modulus)
	if offset > half {
		offset -= modulus
	}
	if offset == half {
		offset = half - 1
	}
	return offset
}

// Calibrated converts a raw encoder reading to the home-centered frame,
// mapped into [0, modulus). Subtraction is modular, so readings just
// across the wrap boundary stay adjacent instead of jumping by a full
// revolution.
func Calibrated(raw, offset, modulus int) int {
	return wrap(raw-offset, modulus)
}

func wrap(v, modulus int) int {
	return ((v % modulus) + modulus) % modulus
}
