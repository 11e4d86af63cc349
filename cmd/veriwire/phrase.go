package main

import (
	"fmt"

	"github.com/go-go-golems/veriwire/pkg/liveness"
	"github.com/go-go-golems/veriwire/pkg/verify"
	"github.com/spf13/cobra"
)

func newPhraseCmd() *cobra.Command {
	var (
		count    int
		greeting bool
	)
	cmd := &cobra.Command{
		Use:   "phrase",
		Short: "Print sample liveness phrases",
		RunE: func(cmd *cobra.Command, args []string) error {
			g := liveness.NewGenerator()
			for i := 0; i < count; i++ {
				p := g.Phrase()
				if greeting {
					p = verify.Greeting(p)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of phrases")
	cmd.Flags().BoolVar(&greeting, "greeting", false, "print the full greeting")
	return cmd
}
