package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vasu1712/scenyx-chat/internal/chatclient"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
)

// NewTailCommand connects as a user and prints every event the server sends.
func NewTailCommand() *cobra.Command {
	var (
		server       string
		token        string
		conversation string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the live event stream of a user's chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token or SCENYX_TOKEN is required")
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := chatclient.Dial(ctx, server, token)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			client.OnEvent = func(env protocol.Envelope) {
				if env.ID != "" {
					fmt.Fprintf(out, "%s [%s] %s\n", env.Event, env.ID, env.Data)
					return
				}
				fmt.Fprintf(out, "%s %s\n", env.Event, env.Data)
			}

			runErr := make(chan error, 1)
			go func() { runErr <- client.Run(ctx) }()

			if conversation != "" {
				if err := client.SetActive(ctx, conversation); err != nil {
					return errors.WithMessage(err, "could not open conversation")
				}
				log.WithField("conversation", conversation).Info("conversation opened")
			}
			return <-runErr
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the chat server")
	cmd.Flags().StringVar(&token, "token", os.Getenv("SCENYX_TOKEN"), "Token to authenticate with")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Conversation to join and mark read")
	return cmd
}
