package app

// Version and BuildCommit are overridden at link time with -ldflags "-X".
var (
	Version     = "dev"
	BuildCommit = "unknown"
)
