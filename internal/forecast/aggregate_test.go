package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var est = time.FixedZone("EST", -5*3600)

func TestAggregatePoints(t *testing.T) {
	points := []Point{
		{TempF: 41.2, Humidity: 70, Description: "overcast clouds", RainIn: 0},
		{TempF: 48.9, Humidity: 81, Description: "Light Rain", RainIn: 0.08},
		{TempF: 44.0, Humidity: 90, Description: "shower rain", RainIn: 0.12},
	}

	stats := AggregatePoints(points)

	assert.Equal(t, 41.2, stats.MinTemp)
	assert.Equal(t, 48.9, stats.MaxTemp)
	assert.InDelta(t, 0.20, stats.TotalRain, 1e-9)
	assert.Zero(t, stats.TotalSnow)
	assert.Equal(t, 80, stats.AvgHumidity)
	assert.True(t, stats.HasRain)
	assert.False(t, stats.HasSnow)
}

func TestAggregatePoints_SnowAndHumidityRounding(t *testing.T) {
	points := []Point{
		{TempF: 28, Humidity: 80, Description: "light snow", SnowIn: 0.1},
		{TempF: 31, Humidity: 81, Description: "broken clouds"},
	}

	stats := AggregatePoints(points)

	assert.True(t, stats.HasSnow)
	assert.False(t, stats.HasRain)
	assert.Equal(t, 81, stats.AvgHumidity) // 80.5 rounds up
}

func TestAggregatePoints_Empty(t *testing.T) {
	assert.Equal(t, Stats{}, AggregatePoints(nil))
}

func TestSelectTomorrow(t *testing.T) {
	now := time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC) // 10:00 local
	at := func(day, hour int) time.Time { return time.Date(2026, time.March, day, hour, 0, 0, 0, est) }

	points := []Point{
		{Time: at(14, 19), TempF: 1},
		{Time: at(15, 1), TempF: 2},
		{Time: at(15, 7), TempF: 3},
		{Time: at(15, 13), TempF: 4},
		{Time: at(15, 21), TempF: 5},
		{Time: at(15, 22), TempF: 6},
		{Time: at(16, 7), TempF: 7},
	}

	got := SelectTomorrow(points, now, est, Daytime{StartHour: 6, EndHour: 21})

	temps := make([]float64, 0, len(got))
	for _, p := range got {
		temps = append(temps, p.TempF)
	}
	assert.Equal(t, []float64{3, 4, 5}, temps)
}

func TestSelectTomorrow_FallsBackToWholeDay(t *testing.T) {
	now := time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC)
	points := []Point{
		{Time: time.Date(2026, time.March, 15, 1, 0, 0, 0, est), TempF: 30},
		{Time: time.Date(2026, time.March, 15, 4, 0, 0, 0, est), TempF: 28},
	}

	got := SelectTomorrow(points, now, est, Daytime{StartHour: 6, EndHour: 21})
	assert.Len(t, got, 2)

	assert.Empty(t, SelectTomorrow(points[:0], now, est, Daytime{StartHour: 6, EndHour: 21}))
}

func TestSelectTomorrow_UsesLocalDayNotUTC(t *testing.T) {
	// 23:30 local on the 14th is already the 15th in UTC.
	now := time.Date(2026, time.March, 15, 4, 30, 0, 0, time.UTC)
	points := []Point{
		{Time: time.Date(2026, time.March, 15, 12, 0, 0, 0, est), TempF: 50},
		{Time: time.Date(2026, time.March, 16, 12, 0, 0, 0, est), TempF: 60},
	}

	got := SelectTomorrow(points, now, est, Daytime{StartHour: 6, EndHour: 21})
	assert.Len(t, got, 1)
	assert.Equal(t, 50.0, got[0].TempF)
}
