// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugrun/plugrun/internal/plugin/validator"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a plugin candidate",
		Long: `Run the security and structure checks over a plugin directory or a
single source file, and print the scored verdict. Exits non-zero when
the candidate is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := validator.New()
			res := v.Validate(args[0])

			cmd.Printf("candidate: %s\n", res.Path)
			cmd.Printf("score:     %d/100\n", res.Score)
			cmd.Printf("valid:     %t\n", res.Valid)
			if res.Digest != "" {
				cmd.Printf("digest:    %s\n", res.Digest)
			}

			for _, issue := range res.Issues {
				cmd.Printf("error   [%s] %s (%s)\n", issue.Category, issue.Message, issue.Path)
			}
			for _, issue := range res.Warnings {
				cmd.Printf("warning [%s] %s (%s)\n", issue.Category, issue.Message, issue.Path)
			}
			for _, rec := range res.Recommendations {
				cmd.Printf("hint: %s\n", rec)
			}

			if !res.Valid {
				return fmt.Errorf("candidate failed validation with score %d", res.Score)
			}
			return nil
		},
	}
	return cmd
}
