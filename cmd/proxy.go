package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/pool/proxy"
)

// newProxyCmd groups proxy pool administration subcommands.
func newProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Administers the shared proxy pool",
	}
	cmd.AddCommand(newProxyAddCmd())
	cmd.AddCommand(newProxyListCmd())
	cmd.AddCommand(newProxyCheckCmd())
	return cmd
}

func newProxyAddCmd() *cobra.Command {
	var score int
	cmd := &cobra.Command{
		Use:   "add <address>...",
		Short: "Adds proxies to the pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			for _, addr := range args {
				if err := appInstance.Proxies().Add(cmd.Context(), addr, score); err != nil {
					return fmt.Errorf("add proxy %s: %w", addr, err)
				}
				appInstance.Logger().Info("proxy added",
					zap.String("proxy", addr), zap.Int("score", score))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&score, "score", proxy.DefaultScore, "initial proxy score")
	return cmd
}

func newProxyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists pooled proxies and their scores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			addrs, err := appInstance.Proxies().Members(cmd.Context())
			if err != nil {
				return fmt.Errorf("list proxies: %w", err)
			}
			for _, addr := range addrs {
				score, err := appInstance.Proxies().Score(cmd.Context(), addr)
				if err != nil {
					return fmt.Errorf("score proxy %s: %w", addr, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", addr, score)
			}
			return nil
		},
	}
}

func newProxyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probes every pooled proxy once and updates scores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Checker().CheckOnce(cmd.Context())
			return nil
		},
	}
}
