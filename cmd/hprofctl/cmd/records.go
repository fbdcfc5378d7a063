package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wroldwiedbwe/hprofkit/internal/hprof"
	"github.com/wroldwiedbwe/hprofkit/pkg/writer"
)

type recordView struct {
	Tag    uint8  `json:"tag"`
	Offset int64  `json:"offset"`
	Length uint32 `json:"length"`
	Kind   string `json:"kind,omitempty"`
}

var recordsCmd = &cobra.Command{
	Use:   "records <path>",
	Short: "List the top-level records of a dump",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := hprof.Open(path, hprof.WithLogger(GetLogger()))
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := f.Records()
	if err != nil {
		return err
	}

	views := make([]recordView, 0, len(records))
	for _, r := range records {
		views = append(views, recordView{
			Tag:    uint8(r.Tag),
			Offset: r.Offset,
			Length: r.Length,
			Kind:   recordKind(r),
		})
	}

	GetLogger().Info("%s: %d top-level records, idsize=%d", path, len(views), f.Header().IDSize)
	return writer.NewPrettyJSONWriter[[]recordView]().Write(views, os.Stdout)
}

func recordKind(r hprof.Record) string {
	switch {
	case r.Name != nil:
		return "utf8"
	case r.Class != nil:
		return "load-class"
	case r.Unload != nil:
		return "unload-class"
	case r.Segment != nil:
		return "heap-dump-segment"
	default:
		return fmt.Sprintf("tag-0x%02x", uint8(r.Tag))
	}
}
