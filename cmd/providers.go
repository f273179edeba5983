package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vidgate/internal/ui"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List known hosting providers and their reliability",
	Args:  cobra.NoArgs,
	RunE:  providersRun,
}

func providersRun(cmd *cobra.Command, args []string) error {
	profiles := registry().Profiles()

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}

	fmt.Println(ui.Providers(profiles))
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vidgate " + Version)
	},
}
