package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/shadow"
)

func newShadowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shadow",
		Short: "Inspect and control Shadow Mode's approval gate",
	}

	cmd.AddCommand(
		newShadowStatusCmd(),
		newShadowModeCmd(),
		newShadowApproveCmd(),
		newShadowRejectCmd(),
	)

	return cmd
}

func newShadowStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List pending operations awaiting approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openShadowGuard(projectRoot())
			if err != nil {
				return err
			}
			pending := g.Pending()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "mode: %s\n", g.ModeValue())
			if len(pending) == 0 {
				fmt.Fprintln(w, "no operations pending")
				return nil
			}
			for _, op := range pending {
				fmt.Fprintf(w, "%s  %-8s %-18s %s\n", op.OpID, op.Severity, op.Kind, op.FilePath)
			}
			return nil
		},
	}
}

func newShadowModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode [disabled|enabled|strict]",
		Short: "Show or change the current Shadow Mode level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openShadowGuard(projectRoot())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(w, g.ModeValue())
				return nil
			}
			mode, err := parseShadowMode(args[0])
			if err != nil {
				return err
			}
			if err := g.SetMode(mode); err != nil {
				return fmt.Errorf("set mode: %w", err)
			}
			fmt.Fprintf(w, "mode set to %s\n", mode)
			return nil
		},
	}
	return cmd
}

func parseShadowMode(s string) (shadow.Mode, error) {
	switch s {
	case "disabled":
		return shadow.Disabled, nil
	case "enabled":
		return shadow.Enabled, nil
	case "strict":
		return shadow.Strict, nil
	default:
		return "", fmt.Errorf("unknown mode %q, want disabled|enabled|strict", s)
	}
}

func newShadowApproveCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "approve <op-id>",
		Short: "Approve a pending operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openShadowGuard(projectRoot())
			if err != nil {
				return err
			}
			if err := g.Approve(args[0], note); err != nil {
				return fmt.Errorf("approve: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "optional note recorded with the decision")
	return cmd
}

func newShadowRejectCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "reject <op-id>",
		Short: "Reject a pending operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openShadowGuard(projectRoot())
			if err != nil {
				return err
			}
			if err := g.Reject(args[0], note); err != nil {
				return fmt.Errorf("reject: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rejected %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "optional note recorded with the decision")
	return cmd
}
