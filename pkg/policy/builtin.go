package policy

import (
	"encoding/json"
	"math"
)

const (
	// DeviceTamperingName is the configuration key of the device tampering policy.
	DeviceTamperingName = "deviceTampering"
	// BiometricAvailableName is the configuration key of the biometric availability policy.
	BiometricAvailableName = "biometricAvailable"

	// DefaultTamperingThreshold is used when the configuration carries no score.
	DefaultTamperingThreshold = 1.0
)

// TamperDetector scores how likely the host device has been tampered with,
// from 0.0 (clean) to 1.0 (certainly compromised).
type TamperDetector interface {
	Score() float64
}

// TamperDetectorFunc adapts a function to TamperDetector.
type TamperDetectorFunc func() float64

// Score calls f().
func (f TamperDetectorFunc) Score() float64 {
	return f()
}

type tamperingParams struct {
	Score *float64 `json:"score"`
}

type tamperingData struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
}

// DeviceTamperingPolicy fails when the detector's score reaches the configured
// threshold, {"score": 0.8}. Missing or unreadable parameters use DefaultTamperingThreshold.
// A NaN or infinite score is reported as 1.0 and always fails.
func DeviceTamperingPolicy(detector TamperDetector) Policy {
	return Named(DeviceTamperingName, func(params json.RawMessage) Result {
		threshold := DefaultTamperingThreshold
		var p tamperingParams
		if len(params) > 0 && json.Unmarshal(params, &p) == nil && p.Score != nil {
			threshold = *p.Score
		}

		score := detector.Score()
		finite := !math.IsNaN(score) && !math.IsInf(score, 0)
		if !finite {
			score = 1.0
		}

		data, err := json.Marshal(tamperingData{Score: score, Threshold: threshold})
		if err != nil {
			return Result{Pass: false}
		}
		return Result{
			Pass: finite && score < threshold,
			Data: data,
		}
	})
}

// BiometricAvailablePolicy fails when the host reports no usable biometric sensor.
func BiometricAvailablePolicy(available func() bool) Policy {
	return Named(BiometricAvailableName, func(json.RawMessage) Result {
		return Result{Pass: available()}
	})
}
