package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chukul/caproxy/internal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CodeArtifact proxy until interrupted",
	Long: `Starts the proxy for the build directory, prints the local URL of every declared
repository and keeps serving until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := loadBuild()
		if err != nil {
			return err
		}
		defer closeBuild(build)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := selectedService(build)
		port, err := waitForPort(ctx, svc)
		if err != nil {
			return err
		}

		fmt.Printf("🚀 CodeArtifact proxy listening on http://localhost:%d (%s)\n", port, svc.Scope())

		build.Configure()
		printRepositoryURLs(build)

		state := internal.ProxyState{
			PID:      os.Getpid(),
			Port:     port,
			Scope:    svc.Scope(),
			BuildDir: build.Dir,
			Started:  time.Now(),
		}
		if err := internal.SaveState(state); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Could not record proxy state: %v\n", err)
		}
		defer clearState(os.Stderr, state)

		<-ctx.Done()
		fmt.Println("🛑 Stopping CodeArtifact proxy...")
		return nil
	},
}

func clearState(w io.Writer, state internal.ProxyState) {
	if err := internal.RemoveState(state); err != nil {
		fmt.Fprintf(w, "⚠️  Could not remove proxy state: %v\n", err)
	}
}

func printRepositoryURLs(build *internal.Build) {
	for _, repo := range append(build.Plugins.Repositories(), build.Repositories.Repositories()...) {
		if repo.Extension() == nil {
			continue
		}
		url, err := repo.EffectiveURL()
		if err != nil {
			fmt.Printf("   %-20s ❌ %v\n", repo.Name, err)
			continue
		}
		fmt.Printf("   %-20s %s\n", repo.Name, url)
	}
}

func init() {
	serveCmd.Flags().BoolVar(&useGlobalScope, "global", false, "Serve the global-scope proxy (environment and defaults only)")
	rootCmd.AddCommand(serveCmd)
}
