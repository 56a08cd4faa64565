package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/clarify-edu/clarify-api/internal/app"
)

var (
	graphCourse string
	graphIndent bool

	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Build a course's knowledge graph and print it as JSON",
		RunE:  runGraph,
	}
)

func init() {
	graphCmd.Flags().StringVar(&graphCourse, "course", "", "course id (required)")
	graphCmd.Flags().BoolVar(&graphIndent, "indent", true, "pretty-print the output")
	graphCmd.MarkFlagRequired("course")
}

func runGraph(cmd *cobra.Command, args []string) error {
	if graphCourse == "" {
		return errors.New("--course is required")
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		g, err := a.Graph.Graph(ctx, graphCourse)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		if graphIndent {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(g)
	})
}
