package attendance

import "sattva/config"

// EstimateMinutes converts a heartbeat count into attended minutes. The
// estimate is capped at the scheduled duration so a client that keeps
// beating past the end cannot inflate its time.
func EstimateMinutes(count, cadenceSec int, durationMinutes float64) float64 {
	est := float64(count) * float64(cadenceSec) / 60.0
	if est > durationMinutes {
		return durationMinutes
	}
	return est
}

// Thresholds decides presence from heartbeat evidence. The three checks
// are OR-combined: meeting any one of them counts as present, so a
// short session is not penalized by the absolute-minutes floor.
type Thresholds struct {
	MinMinutes    float64
	MinHeartbeats int
	MinFraction   float64
	CadenceSec    int
}

func NewThresholds(p config.PresenceConfig, s config.SessionConfig) Thresholds {
	return Thresholds{
		MinMinutes:    p.MinMinutes,
		MinHeartbeats: p.MinHeartbeats,
		MinFraction:   p.MinFraction,
		CadenceSec:    s.HeartbeatCadenceSec,
	}
}

// Present reports whether the heartbeat evidence clears any threshold.
func (t Thresholds) Present(heartbeatCount int, durationMinutes float64) bool {
	est := EstimateMinutes(heartbeatCount, t.CadenceSec, durationMinutes)
	if est >= t.MinMinutes {
		return true
	}
	if heartbeatCount >= t.MinHeartbeats {
		return true
	}
	return est >= t.MinFraction*durationMinutes
}

// Minutes is the audited attended-minutes figure for the summary.
func (t Thresholds) Minutes(heartbeatCount int, durationMinutes float64) float64 {
	return EstimateMinutes(heartbeatCount, t.CadenceSec, durationMinutes)
}
