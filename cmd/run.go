package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chukul/caproxy/internal"
)

var runCmd = &cobra.Command{
	Use:   "run -- <command> [args...]",
	Short: "Run a command with the CodeArtifact proxy available",
	Long: `Starts the proxies the build file needs, runs the command with the proxy URLs in its
environment and stops the proxies when it exits. Every repository with a codeArtifact block is
exported as CODEARTIFACT_URL_<NAME>; the project proxy port is exported as CODEARTIFACT_PROXY_PORT.
The command's exit status is passed through.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := loadBuild()
		if err != nil {
			return err
		}
		defer closeBuild(build)

		build.Configure()
		if errs := build.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		env := os.Environ()
		for _, repo := range append(build.Plugins.Repositories(), build.Repositories.Repositories()...) {
			if repo.Extension() == nil {
				continue
			}
			url, err := repo.EffectiveURL()
			if err != nil {
				return fmt.Errorf("repository %s: %w", repo.Name, err)
			}
			env = append(env, repositoryEnvName(repo.Name)+"="+url)
		}
		if svc, ok := build.Registry.Lookup(internal.ProjectScope); ok {
			port, err := waitForPort(cmd.Context(), svc)
			if err != nil {
				return err
			}
			env = append(env, "CODEARTIFACT_PROXY_PORT="+strconv.Itoa(port))
		}

		// The child gets the signal from the terminal; we only need to
		// outlive it.
		signal.Ignore(os.Interrupt, syscall.SIGTERM)
		defer signal.Reset(os.Interrupt, syscall.SIGTERM)

		child := exec.CommandContext(context.Background(), args[0], args[1:]...)
		child.Env = env
		child.Stdin = os.Stdin
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr

		log.WithField("command", args[0]).Debug("Proxy: running child process")
		if err := child.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return &exitCodeError{code: exitErr.ExitCode()}
			}
			return fmt.Errorf("failed to run %s: %w", args[0], err)
		}
		return nil
	},
}

// repositoryEnvName maps a repository name to CODEARTIFACT_URL_<NAME>.
func repositoryEnvName(name string) string {
	var b strings.Builder
	b.WriteString("CODEARTIFACT_URL_")
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(runCmd)
}
