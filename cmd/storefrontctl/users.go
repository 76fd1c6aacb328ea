package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/storage/mongo"
)

func usersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user roles",
	}
	cmd.AddCommand(
		roleCmd(opts, "promote", "Grant the admin role", user.RoleAdmin),
		roleCmd(opts, "demote", "Revoke the admin role", user.RoleCustomer),
	)
	return cmd
}

func roleCmd(opts *options, use, short string, role user.Role) *cobra.Command {
	return &cobra.Command{
		Use:   use + " UID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRole(cmd.Context(), opts, args[0], role)
		},
	}
}

func setRole(ctx context.Context, opts *options, uid string, role user.Role) error {
	client, err := mongo.Connect(ctx, opts.mongoURI)
	if err != nil {
		return errors.Wrap(err, "connect mongo")
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	users := mongo.NewUserRepository(client.Database(opts.mongoDB))
	if err := users.SetRole(ctx, uid, role); err != nil {
		return errors.Wrapf(err, "set role of %s", uid)
	}
	opts.lg.Info("Role updated", zap.String("uid", uid), zap.String("role", string(role)))
	return nil
}
