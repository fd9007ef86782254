//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with config.toml, or the file named by ANIMA_CONFIG.
func (Run) Testbed() error {
	config := os.Getenv("ANIMA_CONFIG")
	if config == "" {
		config = "config.toml"
	}
	fmt.Println("Run testbed...")
	return goCmd().streaming().run("run", ".", "-config", config)
}
