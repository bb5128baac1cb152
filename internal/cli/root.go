// Package cli implements the tradectl maintenance commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/ingest"
)

// Env is what every command runs against.
type Env struct {
	DB          *gorm.DB
	ChunkSize   int
	ReadWorkers int
	Ingest      ingest.Options
	Close       func()
}

// Opener builds the command environment. It runs once per invocation, after
// flag parsing.
type Opener func(ctx context.Context) (*Env, error)

// NewRootCmd returns the tradectl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	var env *Env

	root := &cobra.Command{
		Use:           "tradectl",
		Short:         "Maintenance commands for the trade statistics store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to open record store: %w", err)
			}
			env = e
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env != nil && env.Close != nil {
				env.Close()
			}
		},
	}

	current := func() *Env { return env }
	root.AddCommand(
		newCountCmd(current),
		newClearCmd(current),
		newImportCmd(current),
		newDuplicatesCmd(current),
	)
	return root
}
