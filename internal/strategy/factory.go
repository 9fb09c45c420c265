package strategy

import (
	"errors"
)

// Strategy type tags recognised by the factory.
const (
	TypeMomentum  = "momentum"
	TypeSpread    = "spread"
	TypeSentiment = "sentiment"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrBadMomentumWindows  = errors.New("momentum requires 0 < fastWindow < slowWindow")
	ErrMissingSpreadLegs   = errors.New("spread requires distinct legA and legB")
	ErrBadWindow           = errors.New("window must be at least 2")
	ErrBadEntryZ           = errors.New("spread requires entryZ > 0")
	ErrBadThresholds       = errors.New("sentiment requires buyAbove > sellBelow")
)

// Config selects and parameterises a strategy variant.
type Config struct {
	Type string `yaml:"type"`

	// Momentum parameters.
	FastWindow int `yaml:"fastWindow"`
	SlowWindow int `yaml:"slowWindow"`

	// Spread parameters. Window is shared with sentiment.
	LegA   string  `yaml:"legA"`
	LegB   string  `yaml:"legB"`
	Window int     `yaml:"window"`
	EntryZ float64 `yaml:"entryZ"`

	// Sentiment parameters.
	BuyAbove  float64 `yaml:"buyAbove"`
	SellBelow float64 `yaml:"sellBelow"`
}

// FromConfig creates a Strategy from Config.
// Validates required parameters per strategy type.
func FromConfig(cfg Config) (Strategy, error) {
	switch cfg.Type {
	case TypeMomentum:
		return fromMomentumConfig(cfg)
	case TypeSpread:
		return fromSpreadConfig(cfg)
	case TypeSentiment:
		return fromSentimentConfig(cfg)
	default:
		return nil, ErrUnknownStrategyType
	}
}

func fromMomentumConfig(cfg Config) (*Momentum, error) {
	if cfg.FastWindow < 1 || cfg.SlowWindow <= cfg.FastWindow {
		return nil, ErrBadMomentumWindows
	}
	return NewMomentum(cfg.FastWindow, cfg.SlowWindow), nil
}

func fromSpreadConfig(cfg Config) (*Spread, error) {
	if cfg.LegA == "" || cfg.LegB == "" || cfg.LegA == cfg.LegB {
		return nil, ErrMissingSpreadLegs
	}
	if cfg.Window < 2 {
		return nil, ErrBadWindow
	}
	if cfg.EntryZ <= 0 {
		return nil, ErrBadEntryZ
	}
	return NewSpread(cfg.LegA, cfg.LegB, cfg.Window, cfg.EntryZ), nil
}

func fromSentimentConfig(cfg Config) (*Sentiment, error) {
	if cfg.Window < 2 {
		return nil, ErrBadWindow
	}
	if cfg.BuyAbove <= cfg.SellBelow {
		return nil, ErrBadThresholds
	}
	return NewSentiment(cfg.Window, cfg.BuyAbove, cfg.SellBelow), nil
}
