// Package sysctl wraps the OS service manager.
//
// The Systemd implementation shells out to systemctl for stop, start, and
// daemon-reload, treating a non-zero exit as failure with captured stderr.
package sysctl
