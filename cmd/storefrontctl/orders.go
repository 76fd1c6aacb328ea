package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/events"
	"github.com/xenking/roseila-storefront/internal/pricing"
	"github.com/xenking/roseila-storefront/internal/storage/postgres"
)

func ordersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and update orders",
	}

	var (
		brokers []string
		topic   string
	)
	setStatus := &cobra.Command{
		Use:   "set-status ORDER_ID STATUS",
		Short: "Move an order to processing, shipped, delivered or cancelled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := order.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withOrders(cmd.Context(), opts, brokers, topic, func(svc *order.Service) error {
				o, err := svc.UpdateStatus(cmd.Context(), args[0], to)
				if err != nil {
					return err
				}
				opts.lg.Info("Order updated", zap.String("id", o.ID), zap.String("status", string(o.Status)))
				return nil
			})
		},
	}
	setStatus.Flags().StringSliceVar(&brokers, "kafka-brokers", nil, "publish the status change to these Kafka brokers")
	setStatus.Flags().StringVar(&topic, "kafka-topic", "storefront.orders", "Kafka topic for order events")

	list := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOrders(cmd.Context(), opts, nil, "", func(svc *order.Service) error {
				orders, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				return printOrders(cmd.OutOrStdout(), orders)
			})
		},
	}

	cmd.AddCommand(list, setStatus)
	return cmd
}

func withOrders(ctx context.Context, opts *options, brokers []string, topic string, fn func(*order.Service) error) error {
	if opts.databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	var publisher events.Publisher = events.NewLogPublisher(opts.lg)
	if len(brokers) > 0 {
		kp := events.NewKafkaPublisher(brokers, topic)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}
	return fn(order.NewService(postgres.NewOrderRepository(pool), pricing.DefaultShipping(), publisher, opts.lg))
}

func printOrders(w io.Writer, orders []order.Order) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tITEMS\tTOTAL\tSTATUS\tCREATED")
	for _, o := range orders {
		items := 0
		for _, l := range o.Lines {
			items += l.Quantity
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			o.ID, o.UserID, items, o.Total.StringFixed(2), o.Status, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
