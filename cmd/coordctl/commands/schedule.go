package commands

import (
	"log/slog"

	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/spf13/cobra"
)

func newScheduleCommand() *cobra.Command {
	var file, locale string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run a weekly allocation pass for a room",
		Long: `Run exclusive assignment and conflict detection for a room payload and
print the assignments, the proposed negotiations and the fairness score.
Nothing is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var room models.Room
			if err := readPayload(cmd, file, &room); err != nil {
				return err
			}
			builder, err := scheduler.NewBuilder(locale, slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))
			if err != nil {
				return err
			}
			result, err := scheduler.Allocate(room, builder)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "room payload, - for stdin")
	cmd.Flags().StringVar(&locale, "locale", "en", "weekday names: en or ko")
	return cmd
}
