package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	dataDir   string
	factoryID string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Inspect factorycraft saves, logs and the index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data", "./data", "runtime data directory")
	root.PersistentFlags().StringVar(&factoryID, "factory", "factory_1", "factory id")

	root.AddCommand(newSavesCommand())
	root.AddCommand(newInspectCommand())
	root.AddCommand(newAuditCommand())
	root.AddCommand(newDBCommand())
	root.AddCommand(newStateCommand())
	root.AddCommand(newSaveNowCommand())
	return root
}

func factoryDir() string { return filepath.Join(dataDir, factoryID) }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
