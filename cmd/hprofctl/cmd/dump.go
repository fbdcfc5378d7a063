package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wroldwiedbwe/hprofkit/internal/hprof"
	"github.com/wroldwiedbwe/hprofkit/pkg/writer"
)

type dumpSummary struct {
	Index       int            `json:"index"`
	ObjectCount int            `json:"object_count"`
	RootCount   int            `json:"root_count"`
	RootsByTag  map[string]int `json:"roots_by_tag"`
	Heaps       []heapSummary  `json:"heaps"`
}

type heapSummary struct {
	ID          uint32 `json:"id"`
	Name        string `json:"name"`
	ObjectCount int    `json:"object_count"`
}

var dumpIndex int

var dumpCmd = &cobra.Command{
	Use:   "dump <path>",
	Short: "Summarise one materialised heap dump in a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().IntVar(&dumpIndex, "index", 0, "Which heap dump to summarise, 0-based")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := hprof.Open(path, hprof.WithLogger(GetLogger()))
	if err != nil {
		return err
	}
	defer f.Close()

	dumps, err := f.Dumps()
	if err != nil {
		return err
	}
	if dumpIndex < 0 || dumpIndex >= len(dumps) {
		return fmt.Errorf("dump index %d out of range: file has %d dump(s)", dumpIndex, len(dumps))
	}
	d := dumps[dumpIndex]

	objectCount := 0
	d.Objects(func(*hprof.JavaObject) bool {
		objectCount++
		return true
	})

	roots := d.Roots()
	byTag := make(map[string]int, len(roots))
	for _, r := range roots {
		byTag[fmt.Sprintf("0x%02x", uint8(r.Tag))]++
	}

	heaps := d.Heaps()
	heapSummaries := make([]heapSummary, len(heaps))
	for i, h := range heaps {
		count := 0
		h.Objects(func(*hprof.JavaObject) bool {
			count++
			return true
		})
		heapSummaries[i] = heapSummary{ID: h.ID(), Name: h.Name(), ObjectCount: count}
	}

	summary := dumpSummary{
		Index:       dumpIndex,
		ObjectCount: objectCount,
		RootCount:   len(roots),
		RootsByTag:  byTag,
		Heaps:       heapSummaries,
	}

	GetLogger().Info("%s: dump %d has %d objects, %d gc roots", path, dumpIndex, objectCount, len(roots))
	return writer.NewPrettyJSONWriter[dumpSummary]().Write(summary, os.Stdout)
}
