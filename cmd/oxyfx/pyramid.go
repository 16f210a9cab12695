package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Carmen-Shannon/oxy-fx/engine/postprocess"
)

func newPyramidCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pyramid <width> <height>",
		Short: "Print the luminance pyramid level sizes for a frame size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid width %q: %w", args[0], err)
			}
			h, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid height %q: %w", args[1], err)
			}
			levels := postprocess.PyramidSizes(w, h)
			if levels == nil {
				return fmt.Errorf("frame size must be positive, got %dx%d", w, h)
			}
			out := cmd.OutOrStdout()
			for i, l := range levels {
				fmt.Fprintf(out, "%d\t%s\n", i, l)
			}
			return nil
		},
	}
}
