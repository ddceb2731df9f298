package ble

import "time"

// connectRetryMax caps the delay between attempts of a pending connect,
// in seconds.
const connectRetryMax = 30

// backoffDelay returns the delay before retry n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	max := time.Duration(maxSeconds) * time.Second
	if delay > max {
		return max
	}
	return delay
}

// pendingConnect keeps a connect request open until dial succeeds or stop
// is closed. The first attempt is immediate; later ones back off. Each
// failure is passed to failed. It reports whether dial succeeded.
func pendingConnect(stop <-chan struct{}, wait func(time.Duration) <-chan time.Time, dial func() error, failed func(attempt int, err error)) bool {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-stop:
				return false
			case <-wait(backoffDelay(attempt-1, connectRetryMax)):
			}
		}
		select {
		case <-stop:
			return false
		default:
		}

		err := dial()
		if err == nil {
			return true
		}
		failed(attempt+1, err)
	}
}
