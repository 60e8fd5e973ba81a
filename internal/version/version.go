// Package version provides build and version information for Sentient Trainer.
package version

// Version is the current release version of Sentient Trainer.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/SentientTrainer/internal/version.Version=x.y.z"
var Version = "0.4.0"
