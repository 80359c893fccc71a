// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/plcforge/pkgbridge/internal/i18n"
)

// promptInput is swapped in tests that script interactive flows.
var promptInput io.Reader = os.Stdin

// promptForConfirmation displays a prompt and reads a line from stdin.
func promptForConfirmation(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(promptInput)
	answer, _ := reader.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(answer))
}

// promptString asks for a value with an optional default.
func promptString(reader *bufio.Reader, label, defaultValue string, required bool) (string, error) {
	for {
		if defaultValue != "" {
			fmt.Printf("%s [%s]: ", label, defaultValue)
		} else {
			fmt.Printf("%s: ", label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		value := strings.TrimSpace(line)
		if value == "" {
			value = defaultValue
		}
		if value == "" && required {
			fmt.Println(i18n.T("prompt.value_required", label))
			continue
		}
		return value, nil
	}
}

// promptChoice displays a numbered menu and returns the selected index.
func promptChoice(reader *bufio.Reader, label string, choices []string, defaultIndex int) (int, error) {
	fmt.Println(label)
	for i, choice := range choices {
		marker := " "
		if i == defaultIndex {
			marker = "*"
		}
		fmt.Printf("  %s %d. %s\n", marker, i+1, choice)
	}

	for {
		fmt.Print(i18n.T("prompt.select", len(choices), defaultIndex+1))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return 0, err
		}
		value := strings.TrimSpace(line)
		if value == "" {
			return defaultIndex, nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > len(choices) {
			fmt.Println(i18n.T("prompt.invalid_choice", len(choices)))
			continue
		}
		return n - 1, nil
	}
}
