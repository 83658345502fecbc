package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chukul/caproxy/internal"
	"github.com/chukul/caproxy/internal/proxy"
	"github.com/chukul/caproxy/internal/ui"
)

var (
	buildDir       string
	propertyFlags  []string
	logLevel       string
	useGlobalScope bool
)

var rootCmd = &cobra.Command{
	Use:   "caproxy",
	Short: "caproxy serves AWS CodeArtifact Maven repositories through a local proxy",
	Long: `caproxy starts a local HTTP proxy that signs requests to AWS CodeArtifact, so build tools
can fetch packages from plain http://localhost URLs without handling AWS credentials themselves.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		log.SetOutput(os.Stderr)
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return nil
	},
}

// exitCodeError carries the exit status of a child process.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&buildDir, "build-dir", "d", ".", "Build directory containing "+internal.BuildFileName)
	rootCmd.PersistentFlags().StringArrayVarP(&propertyFlags, "property", "P", nil, "Set a build property (key=value), may be repeated")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
}

func parseProperties(flags []string) (internal.Properties, error) {
	props := make(internal.Properties, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid property %q, expected key=value", f)
		}
		props[strings.TrimSpace(key)] = value
	}
	return props, nil
}

func loadBuild() (*internal.Build, error) {
	props, err := parseProperties(propertyFlags)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(buildDir)
	if err != nil {
		return nil, err
	}
	return internal.NewBuild(dir, props, nil, &proxy.Starter{})
}

// selectedService returns the proxy of the scope chosen with --global.
func selectedService(build *internal.Build) *internal.ProxyService {
	if useGlobalScope {
		return build.GlobalService()
	}
	return build.ProjectService()
}

// waitForPort blocks until svc is listening. On a terminal the wait shows
// the proxy's lifecycle state as it moves from created to running.
func waitForPort(ctx context.Context, svc *internal.ProxyService) (int, error) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return svc.Port(ctx)
	}
	label := fmt.Sprintf("Starting CodeArtifact proxy (%s)", svc.Scope())
	return ui.Wait(label, func() string { return svc.State().String() }, func() (int, error) {
		return svc.Port(ctx)
	})
}

func closeBuild(build *internal.Build) {
	if err := build.Close(context.Background()); err != nil {
		log.WithError(err).Warn("Proxy: shutdown incomplete")
	}
}
