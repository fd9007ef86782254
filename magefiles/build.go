//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds the testbed binary into bin/.
func (Build) Engine() error {
	if err := (Build{}).Tidy(); err != nil {
		return err
	}
	return goCmd().streaming().run("build", "-o", binaryPath, ".")
}

// Runs go mod tidy and go generate.
func (Build) Tidy() error {
	if err := goCmd().run("mod", "tidy"); err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	if err := goCmd().run("generate", "./..."); err != nil {
		return fmt.Errorf("failed to run go generate: %w", err)
	}
	return nil
}
