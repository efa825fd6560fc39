package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/cctools/internal/logging"
	"github.com/chazu/cctools/pkg/geom"
	"github.com/chazu/cctools/pkg/harmonics"
	"github.com/chazu/cctools/pkg/mesh"
	"github.com/chazu/cctools/pkg/model"
)

var (
	drivePrefix string
	allDrives   bool
	savePath    string
	inPlace     bool
	regionFlag  string
)

// drivesCmd lists drive parameters
var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "List the harmonic drives of a model",
	Long: `Lists drives whose id is the prefix followed by one or two digits
(B1 .. B99 with the default prefix), or every drive with --all.`,
	Args: cobra.NoArgs,
	RunE: listDrives,
}

// getCmd reads a value from the model tree
var getCmd = &cobra.Command{
	Use:   "get [path]",
	Short: "Print the model value at a path",
	Long: `Prints the value at a dotted path as JSON.

Examples:
  cctools get --model model.json domain.min
  cctools get --model model.json 'mesh[0].MAGNITUDE'
  cctools get --model model.json drives.B1`,
	Args: cobra.MaximumNArgs(1),
	RunE: getValue,
}

// setCmd writes a value into the model tree
var setCmd = &cobra.Command{
	Use:   "set [path] [json-value]",
	Short: "Replace the model value at a path",
	Long: `Replaces the value at path with a JSON value. The write must keep the
kind of the current value and leave the model valid.

Example:
  cctools set --model model.json drives.B1.Slope 0.02 --in-place`,
	Args: cobra.ExactArgs(2),
	RunE: setValue,
}

// findCmd searches for named objects
var findCmd = &cobra.Command{
	Use:   "find [name] [relative-path]",
	Short: "Print values inside every object with the given name",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  findByName,
}

// inspectCmd summarizes the mesh
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the mesh data set of a model",
	Long: `Prints the sample count, the sample bounds, the z range and the
sample holding the largest value of the configured component, optionally
restricted to --region xmin,ymin,zmin:xmax,ymax,zmax.`,
	Args: cobra.NoArgs,
	RunE: inspectMesh,
}

func init() {
	for _, c := range []*cobra.Command{drivesCmd, getCmd, setCmd, findCmd, inspectCmd} {
		c.Flags().StringVarP(&modelPath, "model", "m", "", "Model file (JSON or YAML)")
		_ = c.MarkFlagRequired("model")
	}
	drivesCmd.Flags().StringVar(&drivePrefix, "prefix", "", "Drive id prefix (default from config)")
	drivesCmd.Flags().BoolVar(&allDrives, "all", false, "List every drive")
	setCmd.Flags().StringVar(&savePath, "save", "", "Write the updated model to this file")
	setCmd.Flags().BoolVar(&inPlace, "in-place", false, "Overwrite the model file")
	inspectCmd.Flags().StringVar(&regionFlag, "region", "", "Restrict the maximum search to xmin,ymin,zmin:xmax,ymax,zmax")
	inspectCmd.Flags().StringVarP(&compFlag, "component", "c", "", "Field component (default from config)")
}

func listDrives(cmd *cobra.Command, args []string) error {
	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	var drives harmonics.ParameterMap
	if allDrives {
		drives = h.Drives().All()
	} else {
		prefix := drivePrefix
		if prefix == "" {
			prefix = cfg.Drives.Prefix
		}
		drives = h.DriveValues(prefix)
	}
	w := cmd.OutOrStdout()
	for _, id := range drives.IDs() {
		fmt.Fprintf(w, "%s\t%s\n", id, drives[id])
	}
	return nil
}

func getValue(cmd *cobra.Command, args []string) error {
	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	v, err := model.Get[any](h, path)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

func setValue(cmd *cobra.Command, args []string) error {
	var v any
	if err := json.Unmarshal([]byte(args[1]), &v); err != nil {
		return fmt.Errorf("value %q is not JSON: %w", args[1], err)
	}
	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	prev, err := model.Set[any](h, args[0], v)
	if err != nil {
		return err
	}
	logger.Info("model updated", zap.String("path", args[0]), zap.Any("previous", prev), zap.Any("value", v))

	dst := savePath
	if inPlace {
		dst = modelPath
	}
	if dst != "" {
		if err := h.Save(dst); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), prev)
}

func findByName(cmd *cobra.Command, args []string) error {
	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	rel := ""
	if len(args) == 2 {
		rel = args[1]
	}
	vs, err := h.FindByName(args[0], rel)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), vs)
}

func inspectMesh(cmd *cobra.Command, args []string) error {
	h, err := loadModel(modelPath)
	if err != nil {
		return err
	}
	name := compFlag
	if name == "" {
		name = cfg.Calculation.Component
	}
	comp, err := mesh.ParseFieldComponent(name)
	if err != nil {
		return err
	}
	var region *geom.Cube3D
	if regionFlag != "" {
		r, err := parseRegion(regionFlag)
		if err != nil {
			return err
		}
		region = &r
	}

	m := h.Mesh()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "domain\t%s\n", h.Domain())
	fmt.Fprintf(w, "samples\t%d\n", m.Len())
	if m.Len() == 0 {
		return nil
	}
	bounds, err := m.Bounds()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "bounds\t%s\n", bounds)
	zMin, zMax, err := m.MinMaxZ()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "z\t%s .. %s\n", logging.FormatSci(zMin), logging.FormatSci(zMax))
	extrapolated := lo.CountBy(m.Samples(), func(s mesh.Sample) bool { return s.Extrapolated })
	fmt.Fprintf(w, "extrapolated\t%d\n", extrapolated)

	best, err := m.MaxComponent(comp, region)
	if err != nil {
		return err
	}
	v, _ := best.Value(comp)
	fmt.Fprintf(w, "max %s\t%s at %s\n", comp, logging.FormatSci(v), best.Pos)
	return nil
}

// parseRegion parses "xmin,ymin,zmin:xmax,ymax,zmax".
func parseRegion(s string) (geom.Cube3D, error) {
	from, to, ok := strings.Cut(s, ":")
	if !ok {
		return geom.Cube3D{}, fmt.Errorf("region %q: want min:max", s)
	}
	lower, err := geom.ParseVec3(from)
	if err != nil {
		return geom.Cube3D{}, err
	}
	upper, err := geom.ParseVec3(to)
	if err != nil {
		return geom.Cube3D{}, err
	}
	return geom.NewCube3D(lower, upper, false)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
