package forecast

import "time"

// Daytime is the inclusive band of local hours that counts as riding time.
type Daytime struct {
	StartHour int
	EndHour   int
}

// SelectTomorrow returns the points falling on the calendar day after now in loc,
// restricted to the daytime band. When the band leaves nothing, all of tomorrow's
// points are returned instead.
func SelectTomorrow(points []Point, now time.Time, loc *time.Location, band Daytime) []Point {
	local := now.In(loc)
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	dayAfter := tomorrow.AddDate(0, 0, 1)

	var all, daytime []Point
	for _, p := range points {
		if p.Time.Before(tomorrow) || !p.Time.Before(dayAfter) {
			continue
		}
		all = append(all, p)
		if h := p.Time.In(loc).Hour(); h >= band.StartHour && h <= band.EndHour {
			daytime = append(daytime, p)
		}
	}

	if len(daytime) > 0 {
		return daytime
	}
	return all
}
