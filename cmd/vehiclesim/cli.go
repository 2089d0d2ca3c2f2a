package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kartlab/vehiclesim/internal/config"
)

const usage = `Usage: vehiclesim [flags] <command> [args]

Commands:
  run                  simulate the configured scenario and store the run
  validate             check vehicle tuning and input scripts
  export <runId>...    rebuild the JSON export of stored runs
  list                 list stored runs
  version              print version information

Flags:
`

// exit codes
const (
	exitOK = iota
	exitError
	exitUsage
)

var errUsage = errors.New("usage")

func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configDir := flags.StringP("config", "c", ".", "directory containing "+config.FileName)
	flags.String("log-level", "", "override logLevel (debug, info, warn, error)")
	flags.Duration("duration", 0, "override sim.duration")
	flags.Int64("seed", 0, "override sim.seed")
	outDir := flags.StringP("out", "o", "", "output directory for export (default storage.memory.outputDir)")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return exitUsage
	}
	command := strings.ToLower(rest[0])
	if command == "version" {
		fmt.Fprintf(stdout, "%s %s (built %s)\n", AppName, Version, BuildDate)
		return exitOK
	}

	// flags win over the config file when set
	for key, name := range map[string]string{
		"logLevel":     "log-level",
		"sim.duration": "duration",
		"sim.seed":     "seed",
	} {
		if f := flags.Lookup(name); f != nil && f.Changed {
			_ = viper.BindPFlag(key, f)
		}
	}

	a, err := newApp(*configDir, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "setup failed: %v\n", err)
		return exitError
	}
	defer a.close()

	switch command {
	case "run":
		err = a.runCommand(ctx)
	case "validate":
		err = a.validateCommand()
	case "export":
		err = a.exportCommand(rest[1:], *outDir)
	case "list":
		err = a.listCommand()
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	if err != nil {
		a.log.Error("Command failed", "command", command, "error", err)
		fmt.Fprintf(stderr, "%s: %v\n", command, err)
		if errors.Is(err, errUsage) {
			flags.Usage()
			return exitUsage
		}
		return exitError
	}
	return exitOK
}
