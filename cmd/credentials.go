package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chukul/caproxy/internal"
	"github.com/chukul/caproxy/internal/ui"
)

var credentialsGlobal bool

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Show which credential source the proxy would use",
	Long: `Resolves credentials the same way the proxy does: build properties, then the shared
config profile, then the container endpoint, then the EC2 instance profile. Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := loadBuild()
		if err != nil {
			return err
		}

		params := build.ProjectParameters()
		scope := internal.ProjectScope
		if credentialsGlobal {
			params = build.GlobalParameters()
			scope = internal.GlobalScope
		}

		chain := internal.NewDefaultChain(params)
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		creds, err := chain.ResolveCredentials(ctx)
		if err != nil {
			return err
		}

		kind := "basic"
		if internal.IsSessionCredentials(creds) {
			kind = "session"
		}
		region, _ := params.Region()

		fmt.Printf("%s %s\n", ui.HeaderStyle.Render("Scope:      "), scope)
		fmt.Printf("%s %s\n", ui.HeaderStyle.Render("Source:     "), ui.OKStyle.Render(chain.Source()))
		fmt.Printf("%s %s\n", ui.HeaderStyle.Render("Access key: "), maskKey(creds.AccessKeyID))
		fmt.Printf("%s %s\n", ui.HeaderStyle.Render("Type:       "), kind)
		fmt.Printf("%s %s\n", ui.HeaderStyle.Render("Profile:    "), params.Profile())
		if region != "" {
			fmt.Printf("%s %s\n", ui.HeaderStyle.Render("Region:     "), region)
		}
		if creds.CanExpire {
			fmt.Printf("%s %s (%s)\n", ui.HeaderStyle.Render("Expires:    "),
				internal.FormatLocal(creds.Expires), internal.FormatRemaining(creds.Expires, time.Now()))
		}
		return nil
	},
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "************" + key[len(key)-4:]
}

func init() {
	credentialsCmd.Flags().BoolVar(&credentialsGlobal, "global", false, "Resolve with global-scope settings (environment and defaults only)")
	rootCmd.AddCommand(credentialsCmd)
}
