package app

import "editormcp/internal/domain"

// Version is the semantic version of the server, set at build time via -ldflags.
var Version = domain.ServerVersion

// Build is the git commit hash or build identifier, set at build time via -ldflags.
var Build = "dev"
