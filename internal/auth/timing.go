package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig controls the padding applied to credential checks
type TimingConfig struct {
	BaseDelayMs    int
	RandomDelayMs  int
	DelayOnSuccess bool
}

// TimingDelay pads authentication outcomes to a similar duration so unknown
// accounts and wrong passwords are indistinguishable by response time.
// A nil *TimingDelay never sleeps.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
		sleep:  time.Sleep,
	}
}

// Wait sleeps for the base delay plus jitter
func (td *TimingDelay) Wait(success bool) {
	td.WaitFrom(time.Now(), success)
}

// WaitFrom sleeps until at least the target delay has elapsed since start
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}

	if remaining := td.target() - time.Since(start); remaining > 0 {
		td.sleep(remaining)
	}
}

func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		delay += time.Duration(cryptoRandIntn(td.config.RandomDelayMs)) * time.Millisecond
	}
	return delay
}

// cryptoRandIntn returns a value in [0, max); jitter is dropped if the
// random source fails
func cryptoRandIntn(max int) int {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(b[:]) % uint64(max))
}
