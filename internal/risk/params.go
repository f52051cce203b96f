package risk

import (
	"errors"

	"riskvault/internal/config"
)

// Params holds the volatility→lambda mapping. Lambda values are permille
// (1000 = 1.0x), volatility values are annualized basis points.
type Params struct {
	LambdaMin     int64
	LambdaMax     int64
	VolLowBps     int64
	VolHighBps    int64
	DefaultVolBps int64
}

func ParamsFromConfig(cfg config.RiskConfig) Params {
	return Params{
		LambdaMin:     cfg.LambdaMinPermille,
		LambdaMax:     cfg.LambdaMaxPermille,
		VolLowBps:     cfg.VolLowBps,
		VolHighBps:    cfg.VolHighBps,
		DefaultVolBps: cfg.DefaultVolBps,
	}
}

func (p Params) Validate() error {
	if p.LambdaMin <= 0 || p.LambdaMin >= p.LambdaMax {
		return errors.New("lambda bounds are inverted or non-positive")
	}
	if p.VolLowBps < 0 || p.VolLowBps >= p.VolHighBps {
		return errors.New("volatility breakpoints are inverted or negative")
	}
	if p.DefaultVolBps <= 0 {
		return errors.New("default volatility must be positive")
	}
	return nil
}
