package wire

import "time"

func secNsecToTime(sec int64, nsec int32) time.Time {
	return time.Unix(sec, int64(nsec)).UTC()
}
