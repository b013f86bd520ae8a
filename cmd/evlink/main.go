package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/evlink-labs/evlink/internal/cliconfig"
	"github.com/evlink-labs/evlink/pkg/log"
)

const helpDescription = `
evlink runs a symmetric event/ack link over websockets.

The serve command starts a daemon that accepts connections, declares
its delivery policy and acknowledges every event it receives. The ping
command connects to a daemon, sends probe events and reports ack
round-trip times.

Configuration is merged from a TOML file, EVLINK_* environment
variables and flags, in that order of precedence.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  evlink serve --listen :8787 --ack-timeout 30s
  evlink ping --url ws://127.0.0.1:8787/v1/events --count 5
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	root := &cobra.Command{
		Use:     "evlink",
		Short:   "Symmetric event/ack link over websockets",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newPingCmd())

	if err := root.Execute(); err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
		logger.Error().Err(err).Msg("evlink")
		os.Exit(1)
	}
}

// changedFlags collects the flags set on the command line, so file and
// environment values do not override them.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// applyConfig loads the config file (explicit path or the default
// location), then environment variables, honoring the changed map.
// It returns the path of the file that was loaded, if any.
func applyConfig(cfg *cliconfig.Config, cfgPath string, changed map[string]bool) (string, error) {
	path := cfgPath
	if path == "" {
		path = cliconfig.DefaultConfigPath()
	}

	loaded := ""
	if path != "" && cliconfig.FileExists(path) {
		fc, err := cliconfig.LoadFileConfig(path)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return "", err
		}
		loaded = path
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return "", err
	}

	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return loaded, nil
}

// newLogger builds the console logger for the given level.
func newLogger(level string) (*log.ZerologAdapter, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Logger()
	return log.NewZerologAdapterWithLogger(logger), nil
}
