package playback

import (
	"fmt"

	"github.com/ayahplayer/ayah/internal/audio"
)

// speedSteps are the rates offered by IncreaseSpeed and DecreaseSpeed.
var speedSteps = []float64{
	0.5,  // Half speed
	0.75, // Three-quarter speed
	1.0,  // Normal speed
	1.25, // Quarter faster
	1.5,  // Half faster
	1.75, // Three-quarter faster
	2.0,  // Double speed
}

// stepUp returns the next speed step above current.
func stepUp(current float64) float64 {
	for _, speed := range speedSteps {
		if speed > current {
			return speed
		}
	}

	// Already at maximum speed
	return current
}

// stepDown returns the next speed step below current.
func stepDown(current float64) float64 {
	for i := len(speedSteps) - 1; i >= 0; i-- {
		if speedSteps[i] < current {
			return speedSteps[i]
		}
	}

	// Already at minimum speed
	return current
}

// SpeedLabel returns a human-readable speed description.
func SpeedLabel(speed float64) string {
	switch speed {
	case 0.5:
		return "0.5x (Half Speed)"
	case 0.75:
		return "0.75x (Slow)"
	case 1.0:
		return "1.0x (Normal)"
	case 1.25:
		return "1.25x (Fast)"
	case 1.5:
		return "1.5x (Faster)"
	case 1.75:
		return "1.75x (Very Fast)"
	case 2.0:
		return "2.0x (Double Speed)"
	default:
		return fmt.Sprintf("%.2fx", speed)
	}
}

// clampSpeed bounds speed to what engines accept.
func clampSpeed(speed float64) float64 {
	if speed < audio.MinSpeed {
		return audio.MinSpeed
	}
	if speed > audio.MaxSpeed {
		return audio.MaxSpeed
	}
	return speed
}
