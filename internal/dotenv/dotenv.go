// Package dotenv loads KEY=VALUE files into the process environment.
package dotenv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load reads path and sets every variable it defines. When override is
// false, variables already present in the environment keep their value.
// A missing file is not an error.
func Load(path string, override bool) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open env file %q: %w", path, err)
	}
	defer file.Close()

	vars, err := Parse(file)
	if err != nil {
		return 0, fmt.Errorf("parse env file %q: %w", path, err)
	}

	set := 0
	for _, kv := range vars {
		if !override {
			if _, exists := os.LookupEnv(kv.Key); exists {
				continue
			}
		}
		if err := os.Setenv(kv.Key, kv.Value); err != nil {
			return set, fmt.Errorf("set env %q from %q: %w", kv.Key, path, err)
		}
		set++
	}
	return set, nil
}

type Var struct {
	Key   string
	Value string
}

// Parse returns the variables defined in r in file order.
func Parse(r io.Reader) ([]Var, error) {
	var out []Var
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out = append(out, Var{Key: key, Value: unquote(strings.TrimSpace(val))})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func unquote(val string) string {
	if len(val) >= 2 {
		switch {
		case strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`):
			return strings.ReplaceAll(val[1:len(val)-1], `\n`, "\n")
		case strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'"):
			return val[1 : len(val)-1]
		}
	}
	// Unquoted values may carry a trailing comment.
	if i := strings.Index(val, " #"); i >= 0 {
		val = strings.TrimSpace(val[:i])
	}
	return val
}
