package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"dronedispatch/internal/buildinfo"
	"dronedispatch/internal/dispatch"
	"dronedispatch/internal/model"
	"dronedispatch/internal/opt"
	"dronedispatch/internal/sink"
)

// solve runs the engine on a scenario. strategy "" falls back to the
// scenario's strategy, then to the engine default; "auto" picks one from the
// backlog shape.
func (a *app) solve(cmd *cobra.Command, sc *Scenario, strategy string, maxDistance float64, seed *int64) (model.AssignmentResult, []*model.Vehicle, error) {
	orders, vehicles, err := sc.Build(a.cfg.Engine)
	if err != nil {
		return model.AssignmentResult{}, nil, err
	}
	if strategy == "" {
		strategy = sc.Strategy
	}
	var st opt.Strategy
	switch strategy {
	case dispatch.AutoStrategyName:
		st = dispatch.AutoStrategy(orders, vehicles)
	case "":
		st = a.cfg.Engine.DefaultStrategy
	default:
		if st, err = opt.ParseStrategy(strategy); err != nil {
			return model.AssignmentResult{}, nil, err
		}
	}
	if maxDistance <= 0 {
		maxDistance = sc.MaxDistance
	}
	if seed == nil {
		seed = sc.Seed
	}
	eng := opt.NewEngine(a.cfg.Engine)
	res, err := eng.OptimizeContext(cmd.Context(), opt.Request{
		Orders:      orders,
		Vehicles:    vehicles,
		Strategy:    st,
		MaxDistance: maxDistance,
		Seed:        seed,
		Now:         sc.Clock(),
	})
	return res, vehicles, err
}

func seedFlag(cmd *cobra.Command) *int64 {
	if !cmd.Flags().Changed("seed") {
		return nil
	}
	s, _ := cmd.Flags().GetInt64("seed")
	return &s
}

func (a *app) optimizeCmd() *cobra.Command {
	var (
		scenario, strategy, sinkKind, topic string
		maxDistance                         float64
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Assign a scenario's orders to its vehicles and export the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := LoadScenario(scenario)
			if err != nil {
				return err
			}
			res, _, err := a.solve(cmd, sc, strategy, maxDistance, seedFlag(cmd))
			if err != nil {
				return err
			}
			sk := a.cfg.Sink
			if sinkKind != "" {
				sk.Kind = sinkKind
			}
			if topic == "" {
				topic = sk.Topic
			}
			var out sink.Sink
			if sk.Kind == "" || sk.Kind == "console" {
				out = sink.NewConsole(cmd.OutOrStdout())
			} else if out, err = sink.New(cmd.Context(), sk, a.log); err != nil {
				return err
			}
			msg, err := json.Marshal(res)
			if err != nil {
				return err
			}
			if err := out.WriteMessage(topic, msg); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			ev := a.log.Info()
			if !res.Success {
				ev = a.log.Warn().Str("reason", res.Reason)
			}
			ev.Str("strategy", res.Strategy).
				Int("assigned", res.Assigned).
				Int("unassigned", res.UnassignedCount).
				Int("rejected", len(res.Rejected)).
				Float64("efficiency", res.Efficiency).
				Float64("distance", res.TotalDistance).
				Str("sink", sk.Kind).
				Msg("optimize")
			return nil
		},
	}
	cmd.Flags().StringVarP(&scenario, "scenario", "f", "", "scenario YAML file")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "strategy name, short alias or auto")
	cmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "skip orders farther than this from the depot")
	cmd.Flags().Int64("seed", 0, "clustering seed (defaults to the scenario or engine seed)")
	cmd.Flags().StringVar(&sinkKind, "sink", "", "console, file, kafka or s3 (default from config)")
	cmd.Flags().StringVar(&topic, "topic", "", "sink topic (default from config)")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func (a *app) generateCmd() *cobra.Command {
	var (
		orders, vehicles int
		seed             int64
		out              string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a random scenario as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orders < 0 || vehicles < 0 {
				return fmt.Errorf("orders and vehicles must be non-negative")
			}
			b, err := Generate(seed, orders, vehicles, a.cfg.Engine).Marshal()
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			a.log.Info().Str("file", out).Int("orders", orders).Int("vehicles", vehicles).Msg("scenario written")
			return nil
		},
	}
	cmd.Flags().IntVar(&orders, "orders", 20, "number of orders")
	cmd.Flags().IntVar(&vehicles, "vehicles", 4, "number of vehicles")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

type benchRow struct {
	runs       int
	efficiency float64
	distance   float64
	assigned   int
	elapsed    time.Duration
}

func (a *app) benchCmd() *cobra.Command {
	var (
		runs, orders, vehicles int
		seed                   int64
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare every strategy on generated scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runs <= 0 {
				return fmt.Errorf("runs must be positive")
			}
			strategies := opt.Strategies()
			bar := progressbar.NewOptions(runs*len(strategies),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("bench"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			rows := make(map[opt.Strategy]*benchRow, len(strategies))
			for _, st := range strategies {
				rows[st] = &benchRow{}
			}
			for i := 0; i < runs; i++ {
				sc := Generate(seed+int64(i), orders, vehicles, a.cfg.Engine)
				for _, st := range strategies {
					start := time.Now()
					res, _, err := a.solve(cmd, sc, string(st), 0, nil)
					if err != nil {
						return err
					}
					r := rows[st]
					r.runs++
					r.elapsed += time.Since(start)
					r.efficiency += res.Efficiency
					r.distance += res.TotalDistance
					r.assigned += res.Assigned
					_ = bar.Add(1)
				}
			}
			_ = bar.Finish()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STRATEGY\tMEAN EFFICIENCY\tMEAN DISTANCE\tMEAN ASSIGNED\tMEAN TIME")
			for _, st := range strategies {
				r := rows[st]
				n := float64(r.runs)
				fmt.Fprintf(tw, "%s\t%.3f\t%.2f\t%.1f\t%s\n", st, r.efficiency/n, r.distance/n, float64(r.assigned)/n, (r.elapsed / time.Duration(r.runs)).Round(time.Microsecond))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 10, "generated scenarios per strategy")
	cmd.Flags().IntVar(&orders, "orders", 30, "orders per scenario")
	cmd.Flags().IntVar(&vehicles, "vehicles", 5, "vehicles per scenario")
	cmd.Flags().Int64Var(&seed, "seed", 1, "seed of the first scenario")
	return cmd
}

func (a *app) simulateCmd() *cobra.Command {
	var (
		scenario, vehicle, strategy string
		step                        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Optimize a scenario and print a vehicle's flight samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			if step <= 0 {
				return fmt.Errorf("step must be positive")
			}
			sc, err := LoadScenario(scenario)
			if err != nil {
				return err
			}
			res, vehicles, err := a.solve(cmd, sc, strategy, 0, seedFlag(cmd))
			if err != nil {
				return err
			}
			var v *model.Vehicle
			for _, cand := range vehicles {
				if cand.ID == vehicle || (vehicle == "" && len(cand.Route) > 0) {
					v = cand
					break
				}
			}
			if v == nil {
				return fmt.Errorf("vehicle %q not found in scenario", vehicle)
			}
			if len(v.Route) == 0 {
				return fmt.Errorf("vehicle %s: %w (strategy %s assigned %d orders)", v.ID, dispatch.ErrNoRoute, res.Strategy, res.Assigned)
			}
			if err := opt.CheckStep(v.Route, a.cfg.Engine.Speed, step); err != nil {
				return fmt.Errorf("vehicle %s: %w", v.ID, err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s orders=%v distance=%.3f\n", v.ID, v.AssignedOrders, v.RouteDistance)
			for s := range opt.Trajectory(v.Route, a.cfg.Engine.Speed, step) {
				mark := ""
				if s.Arrived {
					mark = " arrived"
				}
				fmt.Fprintf(w, "t=%7.1fmin leg=%d x=%.3f y=%.3f%s\n", s.Minute, s.Leg, s.Position.X, s.Position.Y, mark)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scenario, "scenario", "f", "", "scenario YAML file")
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "vehicle id (default first vehicle with a route)")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "strategy name, short alias or auto")
	cmd.Flags().DurationVar(&step, "step", 5*time.Minute, "simulated time between samples")
	cmd.Flags().Int64("seed", 0, "clustering seed")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}
