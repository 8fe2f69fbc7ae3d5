package main

import (
	"context"
	"fmt"

	backupinfra "livebridge/internal/infrastructure/backup"
	"livebridge/internal/infrastructure/repositories"
	"livebridge/pkg/backup"
	"livebridge/pkg/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	backupRestoreCmd.Flags().Bool("stream-only", false, "restore only the Stream Manager config")
	backupRestoreCmd.Flags().Bool("event-only", false, "restore only the Event Manager config")
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot and restore the stored manager configs",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Take a snapshot now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, func(ctx context.Context, env backupEnv) error {
			data, err := backupinfra.Collect(ctx, env.repos.CreateStreamConfigRepository(), env.repos.CreateEventConfigRepository())
			if err != nil {
				return err
			}
			data.Metadata["backup_type"] = "manual"

			name, err := env.svc.CreateBackup(ctx, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, func(ctx context.Context, env backupEnv) error {
			names, err := env.svc.ListBackups(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Write a snapshot back to storage (newest when name is omitted)",
	Long: `Writes a snapshot back into config storage. The daemon reads its config
at startup, so stop it before restoring.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		streamOnly, _ := cmd.Flags().GetBool("stream-only")
		eventOnly, _ := cmd.Flags().GetBool("event-only")
		if streamOnly && eventOnly {
			return fmt.Errorf("--stream-only and --event-only are exclusive")
		}
		opts := backupinfra.DefaultRestoreOptions()
		if streamOnly {
			opts.RestoreEvent = false
		}
		if eventOnly {
			opts.RestoreStream = false
		}

		return withBackups(cmd, func(ctx context.Context, env backupEnv) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			} else {
				latest, err := env.svc.Latest(ctx)
				if err != nil {
					return err
				}
				if latest == "" {
					return fmt.Errorf("no backups found")
				}
				name = latest
			}

			restorer := backupinfra.NewRestoreService(
				env.svc,
				env.repos.CreateStreamConfigRepository(),
				env.repos.CreateEventConfigRepository(),
				env.log,
			)
			if err := restorer.RestoreFromBackup(ctx, name, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", name)
			return nil
		})
	},
}

func newBackupService(cfg *config.Config) (*backup.BackupService, error) {
	storage, err := backup.NewFileStorage(cfg.Backup.Dir)
	if err != nil {
		return nil, err
	}
	return backup.NewBackupService(storage, version), nil
}

type backupEnv struct {
	svc   *backup.BackupService
	repos *repositories.RepositoryFactory
	log   *zap.SugaredLogger
}

// withBackups opens config storage and the backup directory for one command.
func withBackups(cmd *cobra.Command, fn func(ctx context.Context, env backupEnv) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zapLogger := newLogger(cfg)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	svc, err := newBackupService(cfg)
	if err != nil {
		return err
	}
	repos, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return err
	}
	defer repos.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, backupEnv{svc: svc, repos: repos, log: log})
}
