package main

import (
	"fmt"
	"os"

	"uptimeboard/internal/config"
	"uptimeboard/internal/services"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "uptimeboard",
	Short: "uptimeboard - live dashboard client for an uptime monitoring backend",
	Long: `uptimeboard logs into an uptime monitoring backend, follows its push
channel and serves live response-time charts to local dashboard viewers.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("uptimeboard %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "uptimeboard.yaml", "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(changePasswordCmd)
	rootCmd.AddCommand(viewerTokenCmd)
	rootCmd.AddCommand(monitorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openClient loads config and returns an API client backed by the
// credential store. Callers close the store.
func openClient() (*config.Config, *services.CredentialStore, *services.APIClient, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := services.OpenCredentialStore(cfg.Storage.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	api := services.NewAPIClient(cfg.Backend.APIURL, store, cfg.Backend.RequestTimeout)
	return cfg, store, api, nil
}
