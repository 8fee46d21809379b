// Package app provides the application service layer.
//
// Orchestrates use cases: accounts, the application lifecycle on the deployment platform,
// and status sync on read. Sits between HTTP handlers and domain repositories. Depends on
// domain interfaces, not concrete implementations.
package app
