// Package logger provides a process-wide, flag-masked logger. Each layer of
// the engine logs under its own mask so individual layers can be traced
// without drowning in output from the others.
//
//	logger.SetFlags(logger.IP | logger.NDP)
//	logger.GetInstance().Info(logger.IP, func() { log.Printf(...) })
package logger

import "sync"

const (
	// ETH link-layer framing and device io
	ETH = 1 << iota
	// IP network-layer send/input decisions
	IP
	// ICMP upper-layer delivery
	ICMP
	// NDP neighbor resolution
	NDP
)

type logger struct {
	flags uint8
}

var instance *logger
var once sync.Once

// GetInstance returns the process-wide logger.
func GetInstance() *logger {
	once.Do(func() {
		instance = &logger{}
	})
	return instance
}

// SetFlags selects which layers are logged.
func SetFlags(flags uint8) {
	GetInstance().flags = flags
}

// Info runs f only when the given layer mask is enabled, keeping the
// formatting work off disabled paths.
func (l *logger) Info(mask uint8, f func()) {
	if mask&l.flags != 0 {
		f()
	}
}
