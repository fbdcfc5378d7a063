package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wroldwiedbwe/hprofkit/internal/hprof"
	"github.com/wroldwiedbwe/hprofkit/pkg/filter"
	"github.com/wroldwiedbwe/hprofkit/pkg/writer"
)

type classView struct {
	ClassID  uint64 `json:"class_id"`
	Name     string `json:"name"`
	Super    string `json:"super,omitempty"`
	Fields   int    `json:"fields"`
	Category string `json:"category"`
}

var (
	classesBusinessPrefixes []string
	classesHideTopLevel     bool
)

var classesCmd = &cobra.Command{
	Use:   "classes <path>",
	Short: "List the classes observed across every heap dump in a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runClasses,
}

func init() {
	classesCmd.Flags().StringSliceVar(&classesBusinessPrefixes, "business-prefix", nil,
		"package prefix to classify as business code (repeatable)")
	classesCmd.Flags().BoolVar(&classesHideTopLevel, "hide-top-level", false,
		"omit container/proxy/lambda classes that clutter a top-level view")
	rootCmd.AddCommand(classesCmd)
}

func runClasses(cmd *cobra.Command, args []string) error {
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

	clf := filter.DefaultFilter
	if len(classesBusinessPrefixes) > 0 {
		clf = filter.NewClassFilter()
		clf.AddBusinessPrefixes(classesBusinessPrefixes)
	}

	seen := make(map[uint64]bool)
	var views []classView
	for _, d := range dumps {
		d.Objects(func(obj *hprof.JavaObject) bool {
			c := obj.Class
			if seen[c.ClassID] {
				return true
			}
			seen[c.ClassID] = true

			if classesHideTopLevel && clf.ShouldFilterTopLevel(c.Name) {
				return true
			}

			super := ""
			if c.Super != nil {
				super = c.Super.Name
			}
			views = append(views, classView{
				ClassID:  c.ClassID,
				Name:     c.Name,
				Super:    super,
				Fields:   len(c.InstanceFields),
				Category: clf.Classify(c.Name).String(),
			})
			return true
		})
	}

	GetLogger().Info("%s: %d distinct classes across %d dump(s)", path, len(views), len(dumps))
	return writer.NewPrettyJSONWriter[[]classView]().Write(views, os.Stdout)
}
