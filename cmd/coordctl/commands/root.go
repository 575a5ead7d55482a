package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the coordctl command tree
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "coordctl",
		Short: "Coordination API toolbox",
		Long: `coordctl issues API keys and runs the negotiation engine offline.
The negotiate and schedule commands read JSON payloads in the same shape as
the HTTP API and print the result as JSON.`,
		SilenceUsage: true,
	}
	root.AddCommand(newKeygenCommand(), newNegotiateCommand(), newScheduleCommand())
	return root
}

// Execute runs the CLI with the process arguments
func Execute() error {
	return NewRootCommand().Execute()
}

// readPayload decodes a JSON file, or stdin when path is "-"
func readPayload(cmd *cobra.Command, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
