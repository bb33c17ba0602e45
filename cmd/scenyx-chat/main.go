package main

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel = "info"

var rootCmd = &cobra.Command{
	Use:   "scenyx-chat",
	Short: "Real-time chat server for the Scenyx marketplace",
	Long: `scenyx-chat serves buyer/seller direct conversations and group chats
over a WebSocket event protocol, with an HTTP API for history, threads,
search, notifications and attachment uploads.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			log.WithError(err).Fatal("cannot parse log-level")
		}
		log.SetLevel(level)
		log.Debug("debug logging enabled")
	},
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	rootCmd.AddCommand(
		NewServeCommand(),
		NewMigrateCommand(),
		NewTokenCommand(),
		NewTailCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace,debug,info,warn,error) (default info)")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}
