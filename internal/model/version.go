package model

// Version is the heatbatch release, overridden at build time with -ldflags.
var Version = "v0.3.0"

// ReleaseOwner and ReleaseRepo name the GitHub repository whose tags --update
// compares against. Release builds set both with -ldflags -X; development
// builds leave them empty and skip the check.
var (
	ReleaseOwner = ""
	ReleaseRepo  = ""
)
