package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chukul/caproxy/internal"
	"github.com/chukul/caproxy/internal/ui"
)

var statusJSON bool

type proxyStatus struct {
	internal.ProxyState
	Alive bool `json:"alive"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the proxies started with `caproxy serve`",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := internal.ListStates()
		if err != nil {
			return err
		}

		statuses := make([]proxyStatus, 0, len(states))
		for _, s := range states {
			statuses = append(statuses, proxyStatus{ProxyState: s, Alive: processAlive(s.PID)})
		}

		if statusJSON {
			out, err := json.MarshalIndent(statuses, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if len(statuses) == 0 {
			fmt.Println("No running proxies found.")
			return nil
		}

		fmt.Printf("%s %s %s %s %s\n",
			ui.HeaderStyle.Render(fmt.Sprintf("%-8s", "PID")),
			ui.HeaderStyle.Render(fmt.Sprintf("%-7s", "PORT")),
			ui.HeaderStyle.Render(fmt.Sprintf("%-30s", "SCOPE")),
			ui.HeaderStyle.Render(fmt.Sprintf("%-10s", "UPTIME")),
			ui.HeaderStyle.Render("BUILD DIR"))
		fmt.Println(strings.Repeat("-", 100))

		now := time.Now()
		for _, s := range statuses {
			pid := ui.OKStyle.Render(fmt.Sprintf("%-8d", s.PID))
			uptime := internal.FormatUptime(s.Started, now)
			if !s.Alive {
				pid = ui.FailStyle.Render(fmt.Sprintf("%-8d", s.PID))
				uptime = "STALE"
			}
			fmt.Printf("%s %-7d %-30s %-10s %s\n", pid, s.Port, s.Scope, uptime, s.BuildDir)
		}
		return nil
	},
}

// processAlive reports whether pid still exists.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output results in JSON format for automation")
	rootCmd.AddCommand(statusCmd)
}
