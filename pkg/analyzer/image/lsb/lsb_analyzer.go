package lsb

import (
	"errors"
	"image"
	"math"
)

// Channels in the order their statistics are reported
var Channels = [4]string{"R", "G", "B", "A"}

// AnalysisResult represents the result of LSB distribution analysis
type AnalysisResult struct {
	AnomalyScore float64
	Entropy      float64 // mean over R, G and B
	Confidence   float64
	// ChiSquare of the even/odd split, mean over R, G and B. Values near 0 mean a suspiciously even split.
	ChiSquare    float64
	ChannelStats map[string]float64
}

// AnalyzeDistribution analyzes the LSB distribution in an image across all color channels
func AnalyzeDistribution(img image.Image) (*AnalysisResult, error) {
	if img == nil {
		return nil, errors.New("nil image provided")
	}

	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return nil, errors.New("empty image")
	}

	// ones[c] counts pixels whose 8-bit channel c has its low bit set
	var ones [4]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			for c, v := range [4]uint32{r, g, b, a} {
				ones[c] += int(v>>8) & 1
			}
		}
	}

	var zeros, entropy, chi [4]float64
	stats := make(map[string]float64, 12)
	for c, name := range Channels {
		zeros[c] = float64(total-ones[c]) / float64(total)
		entropy[c] = binaryEntropy(zeros[c])
		chi[c] = chiSquare(total-ones[c], ones[c])
		stats[name] = entropy[c]
		stats[name+"_zeros"] = zeros[c]
		stats[name+"_chi2"] = chi[c]
	}

	rgbEntropy := (entropy[0] + entropy[1] + entropy[2]) / 3.0

	return &AnalysisResult{
		AnomalyScore: anomalyScore(entropy, zeros),
		Entropy:      rgbEntropy,
		Confidence:   confidence(total, variance(entropy[:])),
		ChiSquare:    (chi[0] + chi[1] + chi[2]) / 3.0,
		ChannelStats: stats,
	}, nil
}

// binaryEntropy is the Shannon entropy of a bit that is zero with probability p
func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// chiSquare compares an even/odd count pair against a uniform split
func chiSquare(even, odd int) float64 {
	expected := float64(even+odd) / 2.0
	if expected == 0 {
		return 0
	}
	de := float64(even) - expected
	do := float64(odd) - expected
	return (de*de + do*do) / expected
}

// anomalyScore rates how much the LSB planes look like embedded data rather than a natural image
func anomalyScore(entropy, zeros [4]float64) float64 {
	score := 0.0

	rgbEntropy := (entropy[0] + entropy[1] + entropy[2]) / 3.0
	switch {
	case rgbEntropy > 0.97:
		score += 0.4
	case rgbEntropy > 0.92:
		score += 0.2
	}

	// distance from a 50/50 split, normalized to [0,1]
	deviation := 0.0
	for c := 0; c < 3; c++ {
		deviation += math.Abs(zeros[c]-0.5) * 2
	}
	deviation /= 3.0
	switch {
	case deviation < 0.05:
		score += 0.3
	case deviation < 0.1:
		score += 0.2
	}

	// natural images vary between channels
	switch v := variance(entropy[:3]); {
	case v < 0.0001:
		score += 0.3
	case v < 0.001:
		score += 0.15
	}

	// alpha following the RGB pattern
	if math.Abs(entropy[3]-rgbEntropy) < 0.05 && entropy[3] > 0.9 {
		score += 0.2
	}

	return math.Min(score, 1.0)
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}

// confidence grows with the sample size and with extreme entropy variance
func confidence(samples int, variance float64) float64 {
	sampleConfidence := math.Min(float64(samples)/10000.0, 1.0)

	var varianceConfidence float64
	switch {
	case variance < 0.0001:
		varianceConfidence = 0.9
	case variance < 0.001:
		varianceConfidence = 0.7
	case variance < 0.01:
		varianceConfidence = 0.5
	default:
		varianceConfidence = 0.3
	}

	return 0.7*sampleConfidence + 0.3*varianceConfidence
}
