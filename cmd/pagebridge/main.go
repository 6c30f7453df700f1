package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pagebridge",
	Short: "Messenger webhook bridge to a conversation engine",
	Long: `pagebridge receives Facebook Messenger webhook events, forwards user
messages into a conversation engine, and relays the bot's replies and rich
cards back to the user. It can also hand a thread over to the page inbox so
a human operator takes the conversation.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		"Path to config file (default: config.toml, or $CONFIG_PATH)",
	)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
