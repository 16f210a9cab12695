package postprocess

// PipelineBuilderOption is a functional option applied to a pipeline during construction via NewPipeline.
type PipelineBuilderOption func(*pipeline)

// WithBlurIterations sets how many vertical + horizontal blur pairs the bloom pass runs.
// It defaults to 8; values below 1 are ignored.
//
// Parameters:
//   - n: the number of ping-pong iterations
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blur iteration count
func WithBlurIterations(n int) PipelineBuilderOption {
	return func(p *pipeline) {
		if n > 0 {
			p.blurIterations = n
		}
	}
}

// WithBloomThreshold sets the luminance above which color contributes to bloom.
//
// Parameters:
//   - threshold: the luminance threshold, defaults to 1
//
// Returns:
//   - PipelineBuilderOption: a function that sets the bloom threshold
func WithBloomThreshold(threshold float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.bloomThreshold = threshold
	}
}

// WithBloomStrength scales the blurred bloom before it is added to the source.
//
// Parameters:
//   - strength: the bloom weight, defaults to 0.04
//
// Returns:
//   - PipelineBuilderOption: a function that sets the bloom strength
func WithBloomStrength(strength float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.bloomStrength = strength
	}
}

// WithAutoExposure enables the log-average luminance chain. When enabled, the exposure
// used by the composite is derived from the frame instead of the stored value.
//
// Parameters:
//   - enabled: true to meter every frame
//
// Returns:
//   - PipelineBuilderOption: a function that toggles auto exposure
func WithAutoExposure(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.autoExposure = enabled
	}
}

// WithExposure sets the initial exposure in stops.
//
// Parameters:
//   - exposure: the exposure, 0 leaving the source unscaled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the exposure
func WithExposure(exposure float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.exposure = exposure
	}
}

// WithAutoExposureKey sets the middle-grey target of auto exposure.
//
// Parameters:
//   - key: the target average luminance, defaults to 0.18; values <= 0 are ignored
//
// Returns:
//   - PipelineBuilderOption: a function that sets the auto exposure key
func WithAutoExposureKey(key float32) PipelineBuilderOption {
	return func(p *pipeline) {
		if key > 0 {
			p.autoExposureKey = key
		}
	}
}
