//go:build linux

package main

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// watchFile blocks, invoking rebuild whenever path is written to.  Uses
// inotify; editors that replace the file on save trigger IN_CLOSE_WRITE on
// the watched path as long as they write in place.
func watchFile(path string, rebuild func()) error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("inotify_init failed: %w", err)
	}
	defer unix.Close(fd)

	if _, err := unix.InotifyAddWatch(fd, path, unix.IN_MODIFY|unix.IN_CLOSE_WRITE); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	buf := make([]byte, unix.SizeofInotifyEvent*32)
	var last time.Time
	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n <= 0 {
			continue
		}
		// Debounce save bursts: editors often fire several events per save.
		if time.Since(last) > 200*time.Millisecond {
			rebuild()
		}
		last = time.Now()
	}
}
