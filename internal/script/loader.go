package script

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const utf8BOM = "\uFEFF"

// SortPaths orders script files the way the desktop app did (locale comparison).
func SortPaths(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	collate.New(language.Und).SortStrings(sorted)
	return sorted
}

// LoadScripts concatenates the files in sorted order, each followed by a newline.
func LoadScripts(paths []string) (string, error) {
	var b strings.Builder
	for _, path := range SortPaths(paths) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read script %s: %w", path, err)
		}
		b.WriteString(strings.TrimPrefix(string(data), utf8BOM))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func ParseFiles(paths []string) ([]Instruction, error) {
	text, err := LoadScripts(paths)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}
