package risk

import "golang-news-trader/internal/entity"

// StopLossPrice is entry*(1-pct/100) for longs and entry*(1+pct/100) for shorts.
func StopLossPrice(entry, pct float64, dir entity.Direction) float64 {
	return entity.StopLossLevel(entry, pct, dir)
}

// TakeProfitPrice is entry*(1+pct/100) for longs and entry*(1-pct/100) for shorts.
func TakeProfitPrice(entry, pct float64, dir entity.Direction) float64 {
	return entity.TakeProfitLevel(entry, pct, dir)
}

// PercentFromPrice is the unsigned distance of level from entry in percent.
func PercentFromPrice(entry, level float64) float64 {
	pct := entity.LevelPercent(entry, level)
	if pct < 0 {
		return -pct
	}
	return pct
}
