//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binaryPath = "bin/anima-instancing"

// goTool runs the go command for the engine tasks.
type goTool struct {
	env    map[string]string
	stream bool
}

func goCmd() *goTool {
	return &goTool{env: map[string]string{}}
}

// with sets an environment variable for the command.
func (g *goTool) with(key, value string) *goTool {
	g.env[key] = value
	return g
}

// streaming copies the output to the terminal while the command runs.
func (g *goTool) streaming() *goTool {
	g.stream = true
	return g
}

// run executes go with args. Output is only shown on failure unless the
// command streams or mage runs with -v.
func (g *goTool) run(args ...string) error {
	fmt.Printf("go %s\n", strings.Join(args, " "))

	var b bytes.Buffer
	var stdout, stderr io.Writer = &b, &b
	show := g.stream || mg.Verbose()
	if show {
		stdout = io.MultiWriter(&b, os.Stdout)
		stderr = io.MultiWriter(&b, os.Stderr)
	}
	if _, err := sh.Exec(g.env, stdout, stderr, mg.GoCmd(), args...); err != nil {
		if !show {
			fmt.Println(b.String())
		}
		return fmt.Errorf("go %s failed: %w", args[0], err)
	}
	return nil
}
