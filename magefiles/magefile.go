//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the vault project using Mage.
//
// Usage:
//
//	mage build          Compile the vault binary to bin/
//	mage serve          Build and run the HTTP server against ./.vault
//	mage test:all       Run all tests
//	mage test:unit      Run tests in short mode
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Run all tests and write coverage.out
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install vault to GOPATH/bin
//	mage stats          Print Go LOC and documentation word counts
package main
