package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects the daemon a remote command talks to.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	// Discover browses mDNS for a daemon when APIUrl is empty.
	Discover bool
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// StartFlags holds flags for the start command. Minutes of zero leaves the
// daemon's current dial in place.
type StartFlags struct {
	APIFlags
	Minutes int64
}

type StatusFlags struct {
	APIFlags
	JSON bool
}

type WatchFlags struct {
	APIFlags
	JSON bool
}

type DurationFlags struct {
	APIFlags
	Minutes int64
}

type ControlsFlags struct {
	APIFlags
	ID string
}
