package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	persistlog "factorycraft.ai/internal/persistence/log"
	"factorycraft.ai/internal/persistence/snapshot"
	"factorycraft.ai/internal/sim/factory"
)

type saveListing struct {
	Path string `json:"path"`
	snapshot.Header
}

func newSavesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "saves",
		Short: "List save files with their headers, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(factoryDir(), "saves")
			ents, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("read saves: %w", err)
			}
			var out []saveListing
			for _, e := range ents {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".save.zst") {
					continue
				}
				p := filepath.Join(dir, e.Name())
				h, err := snapshot.ReadHeader(p)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %v\n", e.Name(), err)
					continue
				}
				out = append(out, saveListing{Path: p, Header: h})
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Tick > out[j].Tick })
			for _, s := range out {
				if err := printJSON(cmd.OutOrStdout(), s); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type saveSummary struct {
	snapshot.Header
	TickRate        int            `json:"tick_rate_hz"`
	Buildings       map[string]int `json:"buildings_by_type"`
	Connections     int            `json:"connections"`
	ResourceFields  int            `json:"resource_fields"`
	GlobalInventory map[string]int `json:"global_inventory"`
	StorageCapacity int            `json:"storage_capacity"`
}

func summarize(save snapshot.SaveV1) saveSummary {
	s := saveSummary{
		Header:          save.Header,
		TickRate:        save.TickRate,
		Buildings:       map[string]int{},
		Connections:     len(save.Connections),
		ResourceFields:  len(save.ResourceFields),
		GlobalInventory: save.GlobalInventory,
		StorageCapacity: save.StorageCapacity,
	}
	for _, b := range save.Buildings {
		s.Buildings[b.Type]++
	}
	return s
}

func newInspectCommand() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "inspect <save.zst>",
		Short: "Summarize a save file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			save, err := snapshot.ReadSave(args[0])
			if err != nil {
				return fmt.Errorf("read save: %w", err)
			}
			if full {
				return printJSON(cmd.OutOrStdout(), save)
			}
			return printJSON(cmd.OutOrStdout(), summarize(save))
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print the whole save instead of a summary")
	return cmd
}

func newAuditCommand() *cobra.Command {
	var (
		buildingID string
		sinceTick  uint64
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print audit log entries from the JSONL logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := persistlog.ListFiles(filepath.Join(factoryDir(), "audit"), "audit")
			if err != nil {
				return fmt.Errorf("list audit logs: %w", err)
			}
			var werr error
			for _, f := range files {
				err := persistlog.ReadAudit(f, func(a factory.AuditEntry) bool {
					if a.Tick < sinceTick || (buildingID != "" && a.BuildingID != buildingID) {
						return true
					}
					werr = printJSON(cmd.OutOrStdout(), a)
					return werr == nil
				})
				if err != nil {
					return err
				}
				if werr != nil {
					return werr
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&buildingID, "building", "", "only entries for this building id")
	cmd.Flags().Uint64Var(&sinceTick, "since_tick", 0, "only entries at or after this tick")
	return cmd
}
