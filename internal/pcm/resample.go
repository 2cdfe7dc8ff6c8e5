package pcm

import (
	"fmt"
	"math"
)

// lanczosLobes is the half-width of the interpolation kernel in zero crossings.
const lanczosLobes = 8

// Resample converts the frame to targetRate with windowed-sinc interpolation.
// Matching rates return the frame unchanged. Output length is round(n * target / source).
func Resample(f Frame, targetRate int) (Frame, error) {
	if targetRate <= 0 || f.rate <= 0 {
		return Frame{}, fmt.Errorf("%w: from=%d to=%d", ErrInvalidRate, f.rate, targetRate)
	}
	if targetRate == f.rate {
		return f, nil
	}

	n := len(f.samples)
	outLen := int(math.Round(float64(n) * float64(targetRate) / float64(f.rate)))
	out := make([]int16, outLen)
	if n == 0 || outLen == 0 {
		return owned(out, targetRate, f.capturedAt), nil
	}

	step := float64(f.rate) / float64(targetRate)
	// Downsampling lowers the cutoff to the target Nyquist frequency.
	cutoff := math.Min(1, float64(targetRate)/float64(f.rate))
	radius := float64(lanczosLobes) / cutoff

	for j := range out {
		center := float64(j) * step
		lo := max(int(math.Ceil(center-radius)), 0)
		hi := min(int(math.Floor(center+radius)), n-1)

		var acc, weights float64
		for i := lo; i <= hi; i++ {
			w := lanczos((center - float64(i)) * cutoff)
			acc += w * float64(f.samples[i])
			weights += w
		}
		if weights != 0 {
			acc /= weights
		}
		out[j] = clip(acc)
	}
	return owned(out, targetRate, f.capturedAt), nil
}

func lanczos(x float64) float64 {
	if x == 0 {
		return 1
	}
	if math.Abs(x) >= lanczosLobes {
		return 0
	}
	return sinc(x) * sinc(x/lanczosLobes)
}

func sinc(x float64) float64 {
	px := math.Pi * x
	return math.Sin(px) / px
}
