package keyadmin

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/tradegate/internal/domain/auth"
)

// Store is a closable key store.
type Store interface {
	auth.KeyStore
	io.Closer
}

// Opener connects to the store at databaseURL.
type Opener func(ctx context.Context, databaseURL string) (Store, error)

// NewRootCommand builds the "keys" command tree. defaultURL seeds the
// --database-url flag.
func NewRootCommand(open Opener, defaultURL string, lg *zap.Logger) *cobra.Command {
	var databaseURL string

	withService := func(cmd *cobra.Command, fn func(s *Service, out io.Writer) error) error {
		store, err := open(cmd.Context(), databaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		return fn(NewService(store, lg), cmd.OutOrStdout())
	}

	root := &cobra.Command{
		Use:           "keys",
		Short:         "Manage API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", defaultURL, "database URL")

	var label, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(s *Service, out io.Writer) error {
				k, err := s.Create(cmd.Context(), label, owner)
				if err != nil {
					return err
				}
				printCreated(out, k)
				return nil
			})
		},
	}
	create.Flags().StringVar(&label, "label", "", "human readable label")
	create.Flags().StringVar(&owner, "owner", "", "key owner")
	_ = create.MarkFlagRequired("label")
	_ = create.MarkFlagRequired("owner")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(s *Service, out io.Writer) error {
				keys, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				printKeys(out, keys)
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key (set inactive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(s *Service, out io.Writer) error {
				if err := s.Revoke(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "API key %s revoked successfully\n", args[0])
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(s *Service, out io.Writer) error {
				if err := s.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "API key %s deleted successfully\n", args[0])
				return nil
			})
		},
	}

	root.AddCommand(create, list, revoke, del)
	return root
}

func printCreated(out io.Writer, k *CreatedKey) {
	_, _ = fmt.Fprintf(out, `
API key created successfully

Key ID:  %s
Secret:  %s
Label:   %s
Owner:   %s

IMPORTANT: Store the secret securely. It will not be shown again.

`, k.KeyID, k.Secret, k.Label, k.Owner)
}

func printKeys(out io.Writer, keys []auth.Credential) {
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No API keys found")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"KEY_ID", "LABEL", "OWNER", "ACTIVE", "CREATED_AT", "UPDATED_AT"})
	for _, k := range keys {
		t.AppendRow(table.Row{
			k.KeyID,
			k.Label,
			k.Owner,
			strconv.FormatBool(k.Active),
			k.CreatedAt.UTC().Format(time.RFC3339),
			k.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	t.Render()
}
