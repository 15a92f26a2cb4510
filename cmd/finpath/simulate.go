package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/finpath/factory"
	"github.com/warp/finpath/game"
	"github.com/warp/finpath/game/store"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/logging"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

// script is a headless game: one path and the actions to play on it.
//
//	path: business-typhoon
//	seed: 7
//	steps:
//	  - action: hire-employees
//	    payload: {count: 2, salary: 1000, hiring_cost: 500}
//	  - action: advance-month
//	    repeat: 12
type script struct {
	Path    string              `yaml:"path"`
	Seed    *uint64             `yaml:"seed"`
	Holding generic.HoldingMode `yaml:"holding"`
	Presets string              `yaml:"presets"`
	Steps   []scriptStep        `yaml:"steps"`
}

type scriptStep struct {
	Action  generic.Action `yaml:"action"`
	Payload map[string]any `yaml:"payload"`
	Repeat  int            `yaml:"repeat"`
}

const simulatedPlayer game.PlayerID = "simulator"

func loadScript(path string) (script, error) {
	var s script
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read script: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse script: %w", err)
	}
	if s.Holding == "" {
		s.Holding = generic.HoldingGameMonths
	}
	if _, err := generic.ParseHoldingMode(string(s.Holding)); err != nil {
		return s, err
	}
	for i, st := range s.Steps {
		if st.Action == "" {
			return s, fmt.Errorf("step %d: action is required", i+1)
		}
		if st.Repeat < 0 {
			return s, fmt.Errorf("step %d: repeat must not be negative", i+1)
		}
	}
	return s, nil
}

func simulateCmd() *cobra.Command {
	var keepGoing, verbose bool
	cmd := &cobra.Command{
		Use:   "simulate [script.yaml]",
		Short: "Play a scripted game and print the final metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadScript(args[0])
			if err != nil {
				return err
			}
			logger := zap.NewNop()
			if verbose {
				if logger, err = logging.New("debug", "console"); err != nil {
					return err
				}
			}
			_, err = runScript(cmd.Context(), s, cmd.OutOrStdout(), logger, keepGoing)
			return err
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "report rejected actions and continue")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log service activity")
	return cmd
}

// runScript plays s on an in-memory store and writes a step-by-step report
// to w.
func runScript(ctx context.Context, s script, w io.Writer, logger *zap.Logger, keepGoing bool) (game.Result, error) {
	p, err := game.ParsePath(s.Path)
	if err != nil {
		return game.Result{}, err
	}
	presets := factory.DefaultPresets()
	if s.Presets != "" {
		if presets, err = factory.LoadPresets(s.Presets); err != nil {
			return game.Result{}, err
		}
	}

	svc := game.NewService(store.NewMemory(), presets, logger, game.Config{
		Holding: s.Holding,
		Seed:    s.Seed,
	})
	res, err := svc.SelectPath(ctx, simulatedPlayer, p)
	if err != nil {
		return game.Result{}, err
	}
	accent.Fprintf(w, "== %s ==\n", p)

	step := 0
	for _, st := range s.Steps {
		payload, err := json.Marshal(st.Payload)
		if err != nil {
			return res, fmt.Errorf("encode payload for %s: %w", st.Action, err)
		}
		if st.Payload == nil {
			payload = nil
		}
		for range max(1, st.Repeat) {
			step++
			next, err := svc.Act(ctx, simulatedPlayer, p, st.Action, payload)
			if err != nil {
				danger.Fprintf(w, "%3d  %-20s  rejected: %v\n", step, st.Action, err)
				if !keepGoing {
					return res, fmt.Errorf("step %d (%s): %w", step, st.Action, err)
				}
				continue
			}
			res = next
			success.Fprintf(w, "%3d  %-20s", step, st.Action)
			neutral.Fprintf(w, "  month %d\n", res.State.Progress)
		}
	}

	out, err := json.MarshalIndent(res.Metrics, "", "  ")
	if err != nil {
		return res, fmt.Errorf("encode metrics: %w", err)
	}
	accent.Fprintln(w, "== metrics ==")
	fmt.Fprintln(w, string(out))
	return res, nil
}
