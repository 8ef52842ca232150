package echocan

import "github.com/Raikerian/go-tdmmix/pkg/audio"

// NLMS defaults.
const (
	NLMSName    = "nlms"
	DefaultTaps = 128 // 16 ms at 8 kHz
	DefaultStep = 0.1
)

// NLMS is a normalised least mean squares echo canceller working on the
// chunk-aligned rx/tx pair the tick provides.
type NLMS struct {
	weights []float64
	hist    []float64 // reference history, hist[head] is the newest sample
	head    int
	power   float64 // running sum of hist[k]^2
	step    float64
}

// NewNLMS creates an NLMS canceller with taps coefficients.
func NewNLMS(taps int) (Canceller, error) {
	if taps <= 0 || taps > MaxTaps {
		return nil, ErrInvalidTaps
	}
	return &NLMS{
		weights: make([]float64, taps),
		hist:    make([]float64, taps),
		step:    DefaultStep,
	}, nil
}

func (n *NLMS) Name() string { return NLMSName }

// Taps returns the filter length.
func (n *NLMS) Taps() int { return len(n.weights) }

func (n *NLMS) Process(sig, ref []int16) {
	taps := len(n.weights)
	if taps == 0 {
		return
	}
	for i := range sig {
		var x float64
		if i < len(ref) {
			x = float64(ref[i])
		}
		// Slide the window: the oldest sample leaves, x enters.
		n.head = (n.head + taps - 1) % taps
		old := n.hist[n.head]
		n.power += x*x - old*old
		if n.power < 0 {
			n.power = 0
		}
		n.hist[n.head] = x

		var y float64
		for k := 0; k < taps; k++ {
			y += n.weights[k] * n.hist[(n.head+k)%taps]
		}
		e := float64(sig[i]) - y

		if n.power > 1e-10 {
			mu := n.step * e / n.power
			for k := 0; k < taps; k++ {
				n.weights[k] += mu * n.hist[(n.head+k)%taps]
			}
		}
		sig[i] = audio.Saturate(int32(max(-65536, min(65536, e))))
	}
}

// Close drops the filter state.
func (n *NLMS) Close() {
	n.weights = nil
	n.hist = nil
}
