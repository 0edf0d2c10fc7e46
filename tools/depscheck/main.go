package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "skirmish/server"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under From from importing anything under To.
type rule struct {
	From []string
	To   []string
}

// The simulation core stays transport-free: only the net packages and the
// app may reach websockets, HTTP handlers and process configuration.
var rules = []rule{
	{
		From: []string{
			modulePath + "/internal/action",
			modulePath + "/internal/authority",
			modulePath + "/internal/clock",
			modulePath + "/internal/combat",
			modulePath + "/internal/journal",
			modulePath + "/internal/pickups",
			modulePath + "/internal/protocol",
			modulePath + "/internal/session",
			modulePath + "/internal/state",
			modulePath + "/internal/sweep",
			modulePath + "/internal/world",
		},
		To: []string{
			modulePath + "/internal/net",
			modulePath + "/internal/app",
			modulePath + "/internal/config",
			"github.com/gorilla/websocket",
			"net/http",
		},
	},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	packages, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if violations := check(packages, rules); len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var packages []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return packages, nil
			}
			return nil, err
		}
		packages = append(packages, pkg)
	}
}

func check(packages []packageInfo, rules []rule) []string {
	var violations []string
	for _, pkg := range packages {
		for _, r := range rules {
			if !underAny(pkg.ImportPath, r.From) {
				continue
			}
			for _, imp := range pkg.Imports {
				if underAny(imp, r.To) {
					violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
				}
			}
		}
	}
	sort.Strings(violations)
	return violations
}

func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
