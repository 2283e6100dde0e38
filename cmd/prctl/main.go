// Command prctl inspects procurement reference data from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/procura/api/internal/document"
	"github.com/procura/api/internal/reference"
	"github.com/spf13/cobra"
)

var fixturePath string

var rootCmd = &cobra.Command{
	Use:   "prctl",
	Short: "Procurement order list tooling",
	Long: `prctl queries the catalog used by the order list editor: fuzzy item
matching, category options per work package, development tokens and the
request event stream.`,
	SilenceUsage: true,
}

func init() {
	defaultFixture := os.Getenv("FIXTURE_PATH")
	if defaultFixture == "" {
		defaultFixture = "testdata/fixture.json"
	}
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", defaultFixture, "reference data fixture file")

	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(eventsCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadReference(ctx context.Context) (*reference.Data, error) {
	store, err := document.LoadFixture(fixturePath)
	if err != nil {
		return nil, err
	}
	return reference.Load(ctx, store)
}
