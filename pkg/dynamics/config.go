package dynamics

import "fmt"

// Config holds the author-time tuning of one vehicle. It is not mutated at runtime.
type Config struct {
	// Movement
	AccelerationForce float64 `json:"accelerationForce" mapstructure:"accelerationForce"`
	MaxSpeed          float64 `json:"maxSpeed" mapstructure:"maxSpeed"`
	ReverseMaxSpeed   float64 `json:"reverseMaxSpeed" mapstructure:"reverseMaxSpeed"`
	BrakeForce        float64 `json:"brakeForce" mapstructure:"brakeForce"`

	// Steering
	TurnStrength           float64 `json:"turnStrength" mapstructure:"turnStrength"`
	SteeringResponseFactor float64 `json:"steeringResponseFactor" mapstructure:"steeringResponseFactor"`

	// Body setup
	CenterOfMassOffset float64 `json:"centerOfMassOffset" mapstructure:"centerOfMassOffset"`
	LinearDamping      float64 `json:"linearDamping" mapstructure:"linearDamping"`
	AngularDamping     float64 `json:"angularDamping" mapstructure:"angularDamping"`

	// Ground adherence
	DownForce           float64 `json:"downForce" mapstructure:"downForce"`
	GroundCheckDistance float64 `json:"groundCheckDistance" mapstructure:"groundCheckDistance"`
}

// DefaultConfig returns the stock kart tuning.
func DefaultConfig() Config {
	return Config{
		AccelerationForce:      1000,
		MaxSpeed:               20,
		ReverseMaxSpeed:        10,
		BrakeForce:             1500,
		TurnStrength:           1500,
		SteeringResponseFactor: 5,
		CenterOfMassOffset:     -0.5,
		LinearDamping:          0.3,
		AngularDamping:         3,
		DownForce:              100,
		GroundCheckDistance:    1.0,
	}
}

// TuningWarning is a non-fatal advisory about a configured constant.
type TuningWarning struct {
	Field   string
	Value   float64
	Message string
}

func (w TuningWarning) String() string {
	return fmt.Sprintf("%s=%g: %s", w.Field, w.Value, w.Message)
}

// Validate checks cfg against recommended ranges. Warnings never change behavior.
func Validate(cfg Config) []TuningWarning {
	var warnings []TuningWarning
	warn := func(field string, value float64, msg string) {
		warnings = append(warnings, TuningWarning{Field: field, Value: value, Message: msg})
	}

	if cfg.TurnStrength < 500 {
		warn("turnStrength", cfg.TurnStrength, "turn strength too low, try values between 1000 and 2000 for a responsive feel")
	}
	if cfg.SteeringResponseFactor < 1 {
		warn("steeringResponseFactor", cfg.SteeringResponseFactor, "steering response too low, try values between 3 and 10")
	}
	if cfg.AccelerationForce <= 0 {
		warn("accelerationForce", cfg.AccelerationForce, "acceleration force should be positive")
	}
	if cfg.MaxSpeed <= 0 {
		warn("maxSpeed", cfg.MaxSpeed, "max speed should be positive, the vehicle will be held at rest")
	}
	if cfg.ReverseMaxSpeed <= 0 {
		warn("reverseMaxSpeed", cfg.ReverseMaxSpeed, "reverse max speed should be positive, the vehicle cannot reverse")
	}
	if cfg.ReverseMaxSpeed > cfg.MaxSpeed {
		warn("reverseMaxSpeed", cfg.ReverseMaxSpeed, "reverse max speed exceeds forward max speed")
	}
	if cfg.BrakeForce <= 0 {
		warn("brakeForce", cfg.BrakeForce, "brake force should be positive")
	}
	if cfg.DownForce < 0 {
		warn("downForce", cfg.DownForce, "negative downforce lifts the vehicle")
	}
	if cfg.GroundCheckDistance <= 0 {
		warn("groundCheckDistance", cfg.GroundCheckDistance, "ground probe length should be positive, the vehicle will never be grounded")
	}

	return warnings
}
