package scheduler

import "time"

type dedupKey struct {
	chatID int64
	hour   int // user-local
	minute int // user-local
}

// minuteDedup remembers which users fired during the current UTC minute.
// It is owned by the loop goroutine and never persisted.
type minuteDedup struct {
	minute time.Time
	keys   map[dedupKey]struct{}
}

func newMinuteDedup() *minuteDedup {
	return &minuteDedup{keys: make(map[dedupKey]struct{})}
}

// observe clears the set whenever the UTC minute of now differs from the last one seen.
func (d *minuteDedup) observe(nowUTC time.Time) {
	m := nowUTC.Truncate(time.Minute)
	if !m.Equal(d.minute) {
		d.minute = m
		clear(d.keys)
	}
}

func (d *minuteDedup) seen(k dedupKey) bool {
	_, ok := d.keys[k]
	return ok
}

func (d *minuteDedup) add(k dedupKey) {
	d.keys[k] = struct{}{}
}
