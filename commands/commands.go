package commands

const (
	APP     = "sheetsync"
	VERSION = "v0.3.1"
)
