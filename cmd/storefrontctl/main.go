// Command storefrontctl is the operator CLI: catalog seeding, order status
// changes and role management.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	databaseURL string
	mongoURI    string
	mongoDB     string

	lg *zap.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Operate the Roseila storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.databaseURL == "" {
				opts.databaseURL = os.Getenv("DATABASE_URL")
			}
			if v := os.Getenv("MONGODB_URI"); v != "" && opts.mongoURI == "" {
				opts.mongoURI = v
			}
			if opts.mongoURI == "" {
				opts.mongoURI = "mongodb://localhost:27017"
			}
			lg, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			opts.lg = lg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = opts.lg.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.databaseURL, "database-url", os.Getenv("STOREFRONT_DATABASE_URL"), "PostgreSQL connection URL (or DATABASE_URL env)")
	flags.StringVar(&opts.mongoURI, "mongo-uri", os.Getenv("STOREFRONT_MONGO_URI"), "MongoDB connection URI (or MONGODB_URI env)")
	flags.StringVar(&opts.mongoDB, "mongo-db", "roseila", "MongoDB database name")

	root.AddCommand(
		seedCmd(opts),
		ordersCmd(opts),
		usersCmd(opts),
	)
	return root
}
