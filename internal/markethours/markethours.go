package markethours

import "time"

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsOpen returns true if t falls within NSE trading hours
// (9:15 AM – 3:30 PM IST inclusive, Mon–Fri). Exchange holidays are not
// considered; a holiday only costs a few extra refresh cycles.
func IsOpen(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm <= CloseHour*60+CloseMinute
}

// Interval picks the refresh cadence for t: market during trading hours,
// off otherwise.
func Interval(t time.Time, market, off time.Duration) time.Duration {
	if IsOpen(t) {
		return market
	}
	return off
}

// TodayClose returns today's market close time (3:30 PM IST).
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}
