package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"factorycraft.ai/internal/persistence/indexdb"
)

func newDBCommand() *cobra.Command {
	var (
		dbPath     string
		limit      int
		fromTick   uint64
		buildingID string
	)
	cmd := &cobra.Command{
		Use:       "db <ticks|saves|audits|catalogs>",
		Short:     "Query the SQLite index",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"ticks", "saves", "audits", "catalogs"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(dbPath)
			if path == "" {
				path = filepath.Join(factoryDir(), "index", "factory.sqlite")
			}
			r, err := indexdb.OpenReader(path)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer r.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var rows any
			switch args[0] {
			case "ticks":
				rows, err = r.Ticks(ctx, fromTick, limit)
			case "saves":
				rows, err = r.Saves(ctx, limit)
			case "audits":
				rows, err = r.Audits(ctx, buildingID, limit)
			case "catalogs":
				rows, err = r.Catalogs(ctx)
			default:
				return fmt.Errorf("unknown query %q (ticks|saves|audits|catalogs)", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite db path (default: <data>/<factory>/index/factory.sqlite)")
	cmd.Flags().IntVar(&limit, "limit", 20, "result limit")
	cmd.Flags().Uint64Var(&fromTick, "from_tick", 0, "first tick (ticks)")
	cmd.Flags().StringVar(&buildingID, "building", "", "building id filter (audits)")
	return cmd
}
