package cmds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/recall/pkg/events"
)

// NewEventsCommand groups operations on the turn-event stream.
func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Consume turn events",
	}
	cmd.AddCommand(newEventsListenCommand())
	return cmd
}

func newEventsListenCommand() *cobra.Command {
	var userID string
	var group string
	var consumer string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow a user's turn stream, printing one JSON event per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Events.Transport != "redis" {
				return errors.Errorf("events transport %q has no durable stream to listen on; set transport to redis", cfg.Events.Transport)
			}

			ctx := cmd.Context()
			// Create the group at the tail so a fresh listener does not
			// replay the user's whole turn history.
			if err := events.EnsureGroupAtTail(ctx, cfg.Events.RedisAddr, userID, group); err != nil {
				return err
			}
			sub, err := events.BuildRedisSubscriber(cfg.Events.RedisAddr, group, consumer)
			if err != nil {
				return err
			}
			defer func() { _ = sub.Close() }()

			err = events.ConsumeTurns(ctx, sub, userID, func(ev events.TurnEvent) error {
				raw, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id whose turn stream to follow")
	cmd.Flags().StringVar(&group, "group", "recall", "redis consumer group")
	cmd.Flags().StringVar(&consumer, "consumer", "recall-cli", "consumer name within the group")
	return cmd
}
