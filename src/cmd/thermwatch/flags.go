// FILE: thermwatch/src/cmd/thermwatch/flags.go
package main

import (
	"fmt"
	"strings"
)

// FlagConfig holds application-control flags. Everything else on the
// command line is a config override such as --source.path=/data/stream.csv.
type FlagConfig struct {
	ConfigFile  string
	EnvFile     string
	ShowVersion bool
	ShowHelp    bool
	Quiet       bool
	Overrides   []string
}

// ParseFlags separates control flags from config overrides
func ParseFlags(args []string) (*FlagConfig, error) {
	fc := &FlagConfig{EnvFile: ".env"}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")

		switch name {
		case "-c", "--config":
			if !hasValue {
				if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
					return nil, fmt.Errorf("flag %s requires a path", name)
				}
				i++
				value = args[i]
			}
			if value == "" {
				return nil, fmt.Errorf("flag %s requires a path", name)
			}
			fc.ConfigFile = value

		case "--env-file":
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("flag %s requires a path", name)
				}
				i++
				value = args[i]
			}
			fc.EnvFile = value

		case "-v", "--version":
			fc.ShowVersion = true

		case "-h", "--help":
			fc.ShowHelp = true

		case "-q", "--quiet":
			fc.Quiet = true
			fc.Overrides = append(fc.Overrides, "--quiet=true")

		default:
			if !strings.HasPrefix(arg, "--") {
				return nil, fmt.Errorf("unexpected argument: %s", arg)
			}
			// Accept "--key value" as well as "--key=value"
			if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
				arg = arg + "=" + args[i]
			}
			fc.Overrides = append(fc.Overrides, arg)
		}
	}

	return fc, nil
}
