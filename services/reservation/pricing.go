package reservation

import (
	"math"
	"time"
)

// EstimateCost caps the deliverable energy at the vehicle's usable battery and
// prices it at the connector's per-kWh rate, rounded to 2 decimals.
func EstimateCost(usableBatteryKWh, maxPowerKW, pricePerKWh float64, d time.Duration) (energyKWh, costBDT float64) {
	energy := math.Max(0, math.Min(usableBatteryKWh, d.Hours()*maxPowerKW))
	return round2(energy), round2(energy * pricePerKWh)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
