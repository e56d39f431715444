package messaging

import "math/rand"

// noiseAlphabet is the replacement set for corrupted characters:
// digits then lowercase then uppercase ASCII.
const noiseAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ApplyNoise corrupts a message character by character. Each character is
// replaced with probability noiseFactor; a factor >= 1 garbles the whole
// message (same length), <= 0 transmits it untouched.
func ApplyNoise(content string, noiseFactor float64, rng *rand.Rand) string {
	if noiseFactor <= 0 {
		return content
	}
	runes := []rune(content)
	if noiseFactor >= 1 {
		for i := range runes {
			runes[i] = rune(noiseAlphabet[rng.Intn(len(noiseAlphabet))])
		}
		return string(runes)
	}
	for i := range runes {
		if rng.Float64() < noiseFactor {
			runes[i] = rune(noiseAlphabet[rng.Intn(len(noiseAlphabet))])
		}
	}
	return string(runes)
}

// Readability describes a noise factor for humans reading the feed.
func Readability(noiseFactor float64) string {
	switch {
	case noiseFactor <= 0:
		return "crystal clear"
	case noiseFactor <= 0.1:
		return "minor static"
	case noiseFactor <= 0.3:
		return "noticeable interference"
	case noiseFactor <= 0.5:
		return "heavy distortion"
	case noiseFactor <= 0.8:
		return "barely legible"
	default:
		return "complete garbling"
	}
}
