package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xmemkit/pkg/types"
)

func init() {
	rootCmd.AddCommand(newCodesCmd())
}

func newCodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes [rc]",
		Short: "Describe call status codes",
		Long: `The codes command lists the status codes a cross-memory call can return,
or describes a single one.

Example:
  xmemctl codes
  xmemctl codes 36
  xmemctl codes --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodes(args)
		},
	}
	return cmd
}

type codeEntry struct {
	RC          int    `json:"rc"`
	Description string `json:"description"`
}

func runCodes(args []string) error {
	var codes []types.Status
	if len(args) == 1 {
		rc, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid status code %q: %w", args[0], err)
		}
		codes = []types.Status{types.Status(rc)}
	} else {
		codes = append([]types.Status{types.StatusOK}, types.Known()...)
	}

	if jsonOut {
		entries := make([]codeEntry, 0, len(codes))
		for _, c := range codes {
			entries = append(entries, codeEntry{RC: int(c), Description: c.Description()})
		}
		return printJSON(entries)
	}

	for _, c := range codes {
		printInfo("%3d  %s\n", int(c), c.Description())
	}
	return nil
}
