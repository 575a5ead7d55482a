package commands

import (
	"log/slog"

	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/spf13/cobra"
)

func newNegotiateCommand() *cobra.Command {
	var file, locale string
	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Build a negotiation for one contested block",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in models.NegotiationPreviewInput
			if err := readPayload(cmd, file, &in); err != nil {
				return err
			}
			builder, err := scheduler.NewBuilder(locale, slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))
			if err != nil {
				return err
			}
			n, err := builder.Propose("", in.Block, in.UnsatisfiedMembers, in.Timetable, in.NonOwnerMembers, in.OwnerID, in.StartDate, in.RequiredDuration)
			if err != nil {
				return err
			}
			return printJSON(cmd, n)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "preview payload, - for stdin")
	cmd.Flags().StringVar(&locale, "locale", "en", "weekday names: en or ko")
	return cmd
}
