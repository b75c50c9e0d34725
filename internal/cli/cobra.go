package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tomoalign/internal/logger"
	"tomoalign/pkg/config"
	"tomoalign/pkg/simulation"
	"tomoalign/pkg/tiltscheme"
	"tomoalign/pkg/visualization"
)

// Version is reported by the version command.
const Version = "0.3.0"

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
}

// load reads the configuration file and applies global overrides.
func (g *globals) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Output.LogLevel = g.logLevel
	}
	return cfg, nil
}

func (g *globals) logger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.NewConsole(level), nil
}

// NewRootCmd creates the root Cobra command
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "tomoalign",
		Short: "tomoalign aligns electron tomography tilt series",
		Long: `tomoalign plans tilt-angle acquisition schemes and corrects the geometric
misalignment of tilt series: projection translations, tilt-axis offset and
rotation, and stage backlash.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "tomoalign.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(newPlanCmd(g))
	rootCmd.AddCommand(newSimulateCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the command tree with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newPlanCmd(g *globals) *cobra.Command {
	var (
		kind  string
		count int
		plot  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the tilt angles of an acquisition scheme",
		Long: `Plan lists the angles an acquisition scheme visits in order. The scheme and
its range come from the configuration file; --kind and --count override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if kind != "" {
				cfg.TiltScheme.Kind = kind
			}
			if count > 0 {
				cfg.TiltScheme.Count = count
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			scheme, err := cfg.Scheme()
			if err != nil {
				return err
			}

			angles := tiltscheme.Plan(scheme, tiltscheme.Limit(scheme, cfg.TiltScheme.Count))
			printAngles(cmd.OutOrStdout(), cfg.TiltScheme.Kind, angles)

			if plot != "" {
				title := fmt.Sprintf("%s tilt scheme", cfg.TiltScheme.Kind)
				if err := visualization.PlotAngles(angles, title, plot); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schedule plot saved to: %s\n", plot)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Scheme kind: "+joinKinds())
	cmd.Flags().IntVar(&count, "count", 0, "Number of angles to plan")
	cmd.Flags().StringVar(&plot, "plot", "", "Write the schedule chart to this file (.png, .svg, .pdf)")

	return cmd
}

func newSimulateCmd(g *globals) *cobra.Command {
	var (
		phantomKind string
		size        int
		stages      []string
		seed        uint64
		dose        float64
		rotation    float64
		backlash    float64
		padding     int
		output      string
		saveImages  bool
		noPlots     bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Misalign a synthetic tilt series and recover it",
		Long: `Simulate projects a phantom along the configured tilt scheme, injects
random projection shifts, rotations, angle errors and tilt-axis misalignment,
runs the alignment stages and reports reconstruction quality and particle
properties before and after alignment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("phantom") {
				cfg.Simulation.Phantom = phantomKind
			}
			if flags.Changed("size") {
				cfg.Simulation.Size = size
			}
			if flags.Changed("stages") {
				cfg.Alignment.Stages = stages
			}
			if flags.Changed("seed") {
				cfg.Simulation.Seed = seed
			}
			if flags.Changed("dose") {
				cfg.Simulation.Dose = dose
			}
			if flags.Changed("tilt-rotation") {
				cfg.Simulation.TiltAxisRotation = rotation
			}
			if flags.Changed("backlash") {
				cfg.Simulation.Backlash = backlash
			}
			if flags.Changed("padding") {
				cfg.Alignment.Padding = padding
			}
			if flags.Changed("output") {
				cfg.Output.Directory = output
			}
			if flags.Changed("save-images") {
				cfg.Output.SaveImages = saveImages
			}
			if noPlots {
				cfg.Output.SavePlots = false
			}

			params, err := simulation.ParamsFromConfig(cfg)
			if err != nil {
				return err
			}
			log, err := g.logger(cfg)
			if err != nil {
				return err
			}

			sim := simulation.NewSimulator(params, log)
			if err := sim.Process(cmd.Context()); err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			printSimulation(cmd.OutOrStdout(), cfg, sim)
			return nil
		},
	}

	cmd.Flags().StringVar(&phantomKind, "phantom", "", "Phantom kind (rod, cube, ellipsoid)")
	cmd.Flags().IntVar(&size, "size", 0, "Phantom edge length in voxels")
	cmd.Flags().StringSliceVar(&stages, "stages", nil, "Alignment stages (xcorr, com, shift, rotation, backlash, weighting)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed for injected misalignment")
	cmd.Flags().Float64Var(&dose, "dose", 0, "Poisson noise dose in counts per unit intensity (0 disables)")
	cmd.Flags().Float64Var(&rotation, "tilt-rotation", 0, "In-plane tilt-axis rotation injected into every projection, in degrees")
	cmd.Flags().Float64Var(&backlash, "backlash", 0, "Angular lag injected after every stage reversal, in degrees")
	cmd.Flags().IntVar(&padding, "padding", 0, "Zero pixels added around each projection while aligning")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory for images and plots")
	cmd.Flags().BoolVar(&saveImages, "save-images", false, "Write projections and reconstructed slices as PNG")
	cmd.Flags().BoolVar(&noPlots, "no-plots", false, "Skip diagnostic plots")

	return cmd
}

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if len(args) > 0 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to: %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("tomoalign v%s\n", Version)
		},
	}
}

func joinKinds() string {
	kinds := tiltscheme.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
