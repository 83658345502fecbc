package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chukul/caproxy/internal"
	"github.com/chukul/caproxy/internal/ui"
)

var urlsJSON bool

type repositoryURL struct {
	Name  string `json:"name"`
	Scope string `json:"scope"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Start the proxies and print the effective URL of every repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := loadBuild()
		if err != nil {
			return err
		}
		defer closeBuild(build)

		build.Configure()

		var rows []repositoryURL
		collect := func(scope string, repos []*internal.Repository) {
			for _, repo := range repos {
				row := repositoryURL{Name: repo.Name, Scope: scope}
				if url, err := repo.EffectiveURL(); err != nil {
					row.Error = err.Error()
				} else {
					row.URL = url
				}
				rows = append(rows, row)
			}
		}
		collect(internal.GlobalScope, build.Plugins.Repositories())
		collect(internal.ProjectScope, build.Repositories.Repositories())

		if urlsJSON {
			out, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if len(rows) == 0 {
			fmt.Printf("No repositories declared in %s\n", filepath.Join(build.Dir, internal.BuildFileName))
			return nil
		}

		fmt.Printf("%-24s %-30s %s\n",
			ui.HeaderStyle.Render(fmt.Sprintf("%-24s", "REPOSITORY")),
			ui.HeaderStyle.Render(fmt.Sprintf("%-30s", "SCOPE")),
			ui.HeaderStyle.Render("URL"))
		fmt.Println(strings.Repeat("-", 100))
		for _, row := range rows {
			value := ui.OKStyle.Render(row.URL)
			if row.Error != "" {
				value = ui.FailStyle.Render(row.Error)
			}
			fmt.Printf("%-24s %-30s %s\n", truncateText(row.Name, 24), ui.DimStyle.Render(fmt.Sprintf("%-30s", row.Scope)), value)
		}
		return nil
	},
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	urlsCmd.Flags().BoolVar(&urlsJSON, "json", false, "Output results in JSON format for automation")
	rootCmd.AddCommand(urlsCmd)
}
