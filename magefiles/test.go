//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) Unit() error {
	return goCmd().streaming().run("test", "./...")
}

// Runs every package test with the race detector, which needs cgo.
func (Test) Race() error {
	return goCmd().with("CGO_ENABLED", "1").streaming().run("test", "-race", "./...")
}

// Runs the tests of a single package directory, e.g. mage test:package engine/systems.
func (Test) Package(dir string) error {
	return goCmd().streaming().run("test", "./"+filepath.ToSlash(filepath.Clean(dir)))
}
