package schedule

import "time"

func minutesDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
