package chat

import "time"

// Clock returns the current UTC time in unix seconds. Message timestamps are
// always assigned server-side through one of these, never taken from clients.
type Clock func() int64

func SystemClock() int64 {
	return time.Now().UTC().Unix()
}
