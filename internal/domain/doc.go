// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (user.go, application.go, deployment.go, platform.go) hold the
// shared types and the repository and platform contracts. No implementation code.
package domain
