package controller

import (
	"math"

	config "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/config"
)

// Reward shaping constants. The characteristic scales keep each term
// in a comparable range before the configured weights apply.
const (
	kRTTCharacteristic      = 0.02 // 20ms
	kVarianceCharacteristic = 0.005
	kOverloadThreshold      = 0.8
	kRewardShift            = 5.0
	kRewardClip             = 10.0
)

// ComputeReward scores one telemetry snapshot. The weighting is
// tunable but the sign convention is fixed: lower realized latency
// and lower cross-server load variance always raise the reward.
// Unknown-load sentinels enter at worst case, so a snapshot full of
// unreachable backends scores poorly on its own.
func ComputeReward(snap *Snapshot, w config.RewardWeights) float64 {
	if snap == nil || len(snap.Samples) == 0 {
		return -1.0
	}

	var sumRTT, sumLoad, maxLoad float64
	for _, s := range snap.Samples {
		sumRTT += s.RTT
		sumLoad += s.LoadScore
		if s.LoadScore > maxLoad {
			maxLoad = s.LoadScore
		}
	}
	n := float64(len(snap.Samples))
	avgRTT := sumRTT / n
	avgLoad := sumLoad / n

	variance := 0.0
	for _, s := range snap.Samples {
		d := s.LoadScore - avgLoad
		variance += d * d
	}
	variance /= n

	rttReward := math.Exp(-avgRTT / kRTTCharacteristic)
	varReward := math.Exp(-variance / kVarianceCharacteristic)

	balanceBonus := 1.0 - math.Min(variance/0.01, 1.0)

	overloadPenalty := 0.0
	if maxLoad > kOverloadThreshold {
		overloadPenalty = (maxLoad - kOverloadThreshold) * 5.0
	}

	reward := w.Alpha*rttReward + w.Beta*varReward + balanceBonus - overloadPenalty
	reward -= kRewardShift

	if reward > kRewardClip {
		reward = kRewardClip
	}
	if reward < -kRewardClip {
		reward = -kRewardClip
	}
	return reward
}
