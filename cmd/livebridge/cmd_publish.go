package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"livebridge/internal/core/domain"
	"livebridge/internal/infrastructure/monitoring"
	"livebridge/internal/infrastructure/relay"
	"livebridge/internal/infrastructure/repositories"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("key", "", "private key (hex or nsec); defaults to LIVEBRIDGE_PRIVATE_KEY")
	publishCmd.Flags().String("track-title", "", "publish a now-playing message with this title instead of a status")
	publishCmd.Flags().String("track-creator", "", "now-playing creator")
	publishCmd.Flags().String("track-link", "", "now-playing link")
}

var publishCmd = &cobra.Command{
	Use:   "publish <live|ended>",
	Short: "Publish the stored stream config once, without the daemon",
	Long: `Signs and sends the live event for the stored Stream Manager config with
the given status, and prints the per-relay result. With --track-title a
now-playing message is sent instead and the status argument is omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		zapLogger := newLogger(cfg)
		defer zapLogger.Sync()
		log := zapLogger.Sugar()

		keyFlag, _ := cmd.Flags().GetString("key")
		key, err := privateKeyFrom([]string{keyFlag})
		if err != nil {
			return err
		}

		repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
		if err != nil {
			return err
		}
		defer repoFactory.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		stored, err := repoFactory.CreateStreamConfigRepository().Load(ctx)
		if err != nil {
			return err
		}
		if stored == nil {
			stored = domain.DefaultStreamConfig(cfg.Relays.Defaults)
		}
		if stored.Pubkey, err = relay.PublicKey(key); err != nil {
			return err
		}

		publisher := relay.NewPublisher(publisherConfig(cfg), relay.NostrConnector{}, monitoring.NopRecorder{}, log)

		var res domain.PublishResult
		if title, _ := cmd.Flags().GetString("track-title"); title != "" {
			creator, _ := cmd.Flags().GetString("track-creator")
			link, _ := cmd.Flags().GetString("track-link")
			np := domain.NowPlaying{Title: title, Creator: creator, Link: link}
			res, err = publisher.PublishNowPlaying(ctx, np, key, stored)
		} else {
			if len(args) != 1 {
				return fmt.Errorf("status required: live or ended")
			}
			status := domain.Status(args[0])
			if !status.Valid() {
				return fmt.Errorf("unknown status %q: want live or ended", args[0])
			}
			res, err = publisher.PublishLive(ctx, key, stored, status)
		}

		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if errors.Is(err, domain.ErrNoRelayAccepted) {
			return fmt.Errorf("no relay accepted the event")
		}
		return err
	},
}
