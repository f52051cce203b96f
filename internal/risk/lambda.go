package risk

// Lambda maps annualized volatility to the risk multiplier. The relationship
// is inverse: volatility at or below VolLowBps earns LambdaMax, at or above
// VolHighBps it collapses to LambdaMin, and in between the multiplier falls
// linearly. Pure integer arithmetic, no hidden state.
func Lambda(volBps int64, p Params) int64 {
	if volBps < 0 {
		volBps = 0
	}
	if volBps <= p.VolLowBps {
		return p.LambdaMax
	}
	if volBps >= p.VolHighBps {
		return p.LambdaMin
	}
	span := p.VolHighBps - p.VolLowBps
	lambda := p.LambdaMax - (volBps-p.VolLowBps)*(p.LambdaMax-p.LambdaMin)/span
	if lambda < p.LambdaMin {
		lambda = p.LambdaMin
	}
	if lambda > p.LambdaMax {
		lambda = p.LambdaMax
	}
	return lambda
}

// InBounds reports whether a caller-supplied lambda is inside the configured
// band.
func (p Params) InBounds(lambda int64) bool {
	return lambda >= p.LambdaMin && lambda <= p.LambdaMax
}
