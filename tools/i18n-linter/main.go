// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks the locale files against the Go sources: every
// i18n.T() key must exist in the primary locale, every locale must carry
// the primary locale's keys, and keys nobody references get reported as
// orphaned. Run it from the repository root.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

var usedKeyRe = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

func main() {
	usedKeys, err := findUsedKeys(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan sources: %v\n", err)
		os.Exit(1)
	}

	primaryKeys, err := loadKeysFromLocale(filepath.Join(localesDir, primaryLocale))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", primaryLocale, err)
		os.Exit(1)
	}

	failed := false

	for _, key := range sortedDiff(usedKeys, primaryKeys) {
		fmt.Printf("missing from %s: %s\n", primaryLocale, key)
		failed = true
	}
	for _, key := range sortedDiff(primaryKeys, usedKeys) {
		fmt.Printf("orphaned in %s: %s\n", primaryLocale, key)
	}

	locales, err := filepath.Glob(filepath.Join(localesDir, "*.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "list locales: %v\n", err)
		os.Exit(1)
	}
	for _, file := range locales {
		if filepath.Base(file) == primaryLocale {
			continue
		}
		keys, err := loadKeysFromLocale(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", file, err)
			os.Exit(1)
		}
		for _, key := range sortedDiff(primaryKeys, keys) {
			fmt.Printf("missing from %s: %s\n", filepath.Base(file), key)
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("locale files are consistent")
}

// findUsedKeys collects the message IDs of all i18n.T calls in non-test Go
// files, skipping tools/ and underscore-prefixed directories.
func findUsedKeys(root string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == "tools" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, match := range usedKeyRe.FindAllStringSubmatch(string(content), -1) {
			keys[match[1]] = struct{}{}
		}
		return nil
	})
	return keys, err
}

// loadKeysFromLocale reads one locale file into a flat set of dot-joined
// keys, matching how go-i18n flattens nested YAML.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

func flattenYAML(prefix string, node interface{}, keys map[string]struct{}) {
	if m, ok := node.(map[string]interface{}); ok {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenYAML(key, val, keys)
		}
		return
	}
	if prefix != "" {
		keys[prefix] = struct{}{}
	}
}

// sortedDiff returns the keys of a that are absent from b, sorted.
func sortedDiff(a, b map[string]struct{}) []string {
	var diff []string
	for key := range a {
		if _, ok := b[key]; !ok {
			diff = append(diff, key)
		}
	}
	sort.Strings(diff)
	return diff
}
