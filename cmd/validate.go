package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chukul/caproxy/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every codeArtifact repository is fully configured",
	Long: `Reads the build file and reports every repository whose codeArtifact block is missing a
domain or repository name. No proxy is started.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := loadBuild()
		if err != nil {
			return err
		}

		errs := build.Validate()
		if len(errs) == 0 {
			fmt.Println(ui.OKStyle.Render("✅ All repositories are configured"))
			return nil
		}
		for _, err := range errs {
			fmt.Println(ui.FailStyle.Render("❌ " + err.Error()))
		}
		return fmt.Errorf("%d repositories are misconfigured", len(errs))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
