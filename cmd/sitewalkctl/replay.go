package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitewalk/sitewalk/internal/drawing"
	"github.com/sitewalk/sitewalk/internal/editor"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

// Script is a recorded editing session. Coordinates are screen pixels of a
// viewport ViewportWidth wide.
type Script struct {
	FloorplanID   string  `json:"floorplan_id"`
	ViewportWidth float64 `json:"viewport_width,omitempty"`
	Steps         []Step  `json:"steps"`
}

// Step is one recorded input. Op selects which fields apply:
//
//	page              Page
//	tool              Tool
//	layer             LayerID (0 clears)
//	down, move, up    X, Y
//	dblclick          X, Y
//	key               Key, Mod
//	wheel             DeltaY, X, Y
//	calibrate         (starts the two-click flow)
//	calibrate-click   X, Y
//	calibrate-submit  Distance, Unit
//	retry
//	labels            Show
//	export            Out
type Step struct {
	Op       string  `json:"op"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Page     int     `json:"page,omitempty"`
	Tool     string  `json:"tool,omitempty"`
	LayerID  int64   `json:"layer_id,omitempty"`
	Key      string  `json:"key,omitempty"`
	Mod      bool    `json:"mod,omitempty"`
	DeltaY   float64 `json:"delta_y,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	Show     bool    `json:"show,omitempty"`
	Out      string  `json:"out,omitempty"`
}

var replayKeepGoing bool

var replayCmd = &cobra.Command{
	Use:   "replay <script.json>",
	Short: "Replay a recorded gesture script against the server",
	Long: "Feeds a JSON gesture script through the viewport and drawing state\n" +
		"machine of an editing session. Markers and calibrations are committed\n" +
		"through the API as if drawn by hand.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := loadScript(args[0])
		if err != nil {
			return err
		}

		c := newClient()
		sess, err := editor.Open(cmd.Context(), c, script.FloorplanID, editor.Options{
			Loader:        c,
			Notifier:      stderrNotifier(cmd.ErrOrStderr()),
			ViewportWidth: script.ViewportWidth,
			Author:        author(),
		})
		if err != nil {
			return err
		}

		if err := runScript(cmd.Context(), sess, script.Steps, cmd.OutOrStdout(), replayKeepGoing); err != nil {
			return err
		}
		sess.WaitRenders()
		slog.Info("replay finished",
			slog.Int("steps", len(script.Steps)),
			slog.Int("page", sess.Viewport.State().Page),
			slog.Int("markers", len(sess.Markers())),
		)
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayKeepGoing, "keep-going", false, "log failing steps and continue")
}

func author() *drawing.Author {
	if userID == "" {
		return nil
	}
	return &drawing.Author{ID: userID, Name: userName}
}

func loadScript(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var s Script
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decoding script %s: %w", path, err)
	}
	if s.FloorplanID == "" {
		return nil, fmt.Errorf("script %s has no floorplan_id", path)
	}
	return &s, nil
}

// runScript applies steps in order. A failing step stops the replay unless
// keepGoing is set.
func runScript(ctx context.Context, sess *editor.Session, steps []Step, stdout io.Writer, keepGoing bool) error {
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := applyStep(ctx, sess, st, stdout); err != nil {
			err = fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
			if !keepGoing {
				return err
			}
			slog.Warn("replay step failed", slog.Any("error", err))
		}
	}
	return nil
}

func applyStep(ctx context.Context, sess *editor.Session, st Step, stdout io.Writer) error {
	p := geometry.Pt(st.X, st.Y)
	switch st.Op {
	case "page":
		return sess.OnPageChange(ctx, st.Page)
	case "tool":
		return sess.SetToolMode(st.Tool)
	case "layer":
		return sess.SetActiveLayer(st.LayerID)
	case "down":
		return sess.PointerDown(ctx, p)
	case "move":
		return sess.PointerMove(ctx, p)
	case "up":
		return sess.PointerUp(ctx, p)
	case "dblclick":
		return sess.DoubleClick(ctx, p)
	case "key":
		handled, err := sess.KeyDown(ctx, drawing.Key{Name: st.Key, Mod: st.Mod})
		if err == nil && !handled {
			slog.Debug("key not handled", slog.String("key", st.Key))
		}
		return err
	case "wheel":
		sess.Wheel(st.DeltaY, p)
		return nil
	case "calibrate":
		return sess.BeginCalibration()
	case "calibrate-click":
		return sess.CalibrationClick(p)
	case "calibrate-submit":
		cal, err := sess.SubmitCalibration(ctx, st.Distance, st.Unit)
		if err != nil {
			return err
		}
		slog.Info("calibration saved",
			slog.Int("page", cal.Page),
			slog.Float64("scale_factor", cal.ScaleFactor),
			slog.String("unit", cal.Unit),
		)
		return nil
	case "retry":
		return sess.Retry(ctx)
	case "labels":
		sess.SetShowAllLabels(st.Show)
		return nil
	case "export":
		data, err := sess.HandleEvent(ctx, editor.EventExportFloorplan)
		if err != nil {
			return err
		}
		return writeOutput(stdout, st.Out, data)
	}
	return fmt.Errorf("unknown op %q", st.Op)
}
