package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chukul/caproxy/internal"
	"github.com/chukul/caproxy/internal/ui"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a caproxy.yaml build file",
	Long: `Asks for the CodeArtifact domain and repository and writes a caproxy.yaml with one
repository served through the project proxy. Use --force to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(buildDir)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, internal.BuildFileName)
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		domain, err := ui.Prompt("CodeArtifact domain", "", true)
		if err != nil {
			return err
		}
		owner, err := ui.Prompt("Domain owner account (empty for your own account)", "", false)
		if err != nil {
			return err
		}
		repository, err := ui.Prompt("CodeArtifact repository", "", true)
		if err != nil {
			return err
		}
		name, err := ui.Prompt("Repository name in the build", "codeartifact", true)
		if err != nil {
			return err
		}
		region, err := ui.Prompt("AWS region (empty to use the profile's)", "", false)
		if err != nil {
			return err
		}

		file := &internal.BuildFile{
			Repositories: []internal.RepositoryDecl{{
				Name: name,
				CodeArtifact: &internal.CodeArtifactDecl{
					Domain:         domain,
					DomainOwner:    owner,
					RepositoryName: repository,
				},
			}},
		}
		if region != "" {
			file.Properties = map[string]string{internal.RegionSetting.Property: region}
		}

		if err := internal.SaveBuildFile(dir, file); err != nil {
			return err
		}
		fmt.Printf("✅ Wrote %s\n", path)
		fmt.Println("💡 Run 'caproxy validate' to check it, then 'caproxy serve' to start the proxy.")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing build file")
	rootCmd.AddCommand(initCmd)
}
