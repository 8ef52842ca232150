package audio

// Format constants shared by the law, mixer and buffer layers.
const (
	SampleRate = 8_000 // Hz, G.711 narrowband
	ChunkSize  = 8     // samples per tick (1 ms)

	// LinearSampleBytes is the width of one sample on a linear-mode stream.
	LinearSampleBytes = 2
)
