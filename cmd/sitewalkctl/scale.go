package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

var (
	scaleFrom     string
	scaleTo       string
	scaleDistance float64
	scaleUnit     string
	scaleMeasure  []string
)

var scaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Compute a calibration scale factor",
	Long: "Computes real-world units per PDF point from a reference segment.\n" +
		"With --measure, also reports the calibrated length of a path.\n\n" +
		"  sitewalkctl scale --from 100,200 --to 400,200 --distance 30 --unit ft",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parsePoint(scaleFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		end, err := parsePoint(scaleTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		cal := calibration.Calibration{Start: start, End: end, RealWorldDistance: scaleDistance, Unit: scaleUnit}
		if err := cal.Validate(); err != nil {
			return err
		}
		factor, err := calibration.ComputeScaleFactor(cal)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "scale factor: %s %s per pt\n", strconv.FormatFloat(factor, 'g', 6, 64), scaleUnit)

		if len(scaleMeasure) > 0 {
			pts := make([]geometry.Point, 0, len(scaleMeasure))
			for _, s := range scaleMeasure {
				p, err := parsePoint(s)
				if err != nil {
					return fmt.Errorf("--measure: %w", err)
				}
				pts = append(pts, p)
			}
			if len(pts) < 2 {
				return fmt.Errorf("--measure needs at least two points")
			}
			m, err := calibration.MeasurePath(pts, cal)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "length: %s\n", m)
		}
		return nil
	},
}

func init() {
	scaleCmd.Flags().StringVar(&scaleFrom, "from", "", "reference start point in PDF space, x,y")
	scaleCmd.Flags().StringVar(&scaleTo, "to", "", "reference end point in PDF space, x,y")
	scaleCmd.Flags().Float64Var(&scaleDistance, "distance", 0, "real-world length of the reference segment")
	scaleCmd.Flags().StringVar(&scaleUnit, "unit", "ft", "unit of --distance")
	scaleCmd.Flags().StringArrayVar(&scaleMeasure, "measure", nil, "path vertex x,y to measure (repeatable)")
	_ = scaleCmd.MarkFlagRequired("from")
	_ = scaleCmd.MarkFlagRequired("to")
	_ = scaleCmd.MarkFlagRequired("distance")
}

// parsePoint reads "x,y".
func parsePoint(s string) (geometry.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return geometry.Point{}, fmt.Errorf("point %q must be x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return geometry.Pt(x, y), nil
}
