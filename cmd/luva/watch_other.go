//go:build !linux

package main

import (
	"os"
	"time"
)

// watchFile blocks, invoking rebuild whenever path's mod time advances.
// Portable polling fallback for platforms without the inotify watcher.
func watchFile(path string, rebuild func()) error {
	var lastMod time.Time
	for {
		info, err := os.Stat(path)
		if err == nil && info.ModTime().After(lastMod) {
			if !lastMod.IsZero() {
				rebuild()
			}
			lastMod = info.ModTime()
		}
		time.Sleep(500 * time.Millisecond)
	}
}
