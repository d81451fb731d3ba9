// Command tensorgpu-compile drives the C5/C6 graph-rewriting passes from
// the command line: "compile" builds a small demonstration graph and prints
// it before and after Substitute/FuseCopies, "devices" reports whether a
// usable GPU backend is linked into this binary.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/tensorgpu/internal/compiler"
	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/driver/faked"
	"github.com/orneryd/tensorgpu/internal/dtype"
	"github.com/orneryd/tensorgpu/internal/ir"
	"github.com/orneryd/tensorgpu/internal/kernel"
	tglog "github.com/orneryd/tensorgpu/internal/log"
	"github.com/orneryd/tensorgpu/internal/shape"
	"github.com/orneryd/tensorgpu/internal/symbolic"
	"github.com/orneryd/tensorgpu/internal/symtab"
	"github.com/orneryd/tensorgpu/pkg/config"
)

var (
	cfgFile     string
	deviceIndex int
	arch        string
	elementType string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tensorgpu-compile:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tensorgpu-compile",
		Short: "Graph-rewriting passes for the tensorgpu CUDA backend",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a tensorgpu.yaml config file (defaults to TENSORGPU_* env vars)")
	root.PersistentFlags().IntVar(&deviceIndex, "device", -1, "CUDA device index (overrides config)")
	root.PersistentFlags().StringVar(&arch, "arch", "", "NVRTC target arch, e.g. sm_75 (overrides config)")
	root.PersistentFlags().StringVar(&elementType, "element-type", "", "f32 or f16 (overrides config)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newDevicesCmd())
	root.AddCommand(newCompileCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the backend this binary was built with",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tensorgpu-compile (backend: %s)\n", backendName)
			return nil
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Report whether a usable GPU device is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("backend: %s\n", backendName)
			if !backendAvailable() {
				fmt.Println("no device available")
				return nil
			}
			dev, err := openDevice(0)
			if err != nil {
				return fmt.Errorf("opening device 0: %w", err)
			}
			defer dev.Release()
			fmt.Println("device 0: ok")
			return nil
		},
	}
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Build a demonstration graph and run the Substitute/FuseCopies passes over it",
		Long: `compile constructs a small graph — two host inputs added together, the
result's square root taken, and the output printed and retrieved — and
shows the effect of the two rewriting passes: Substitute lowers every
abstract primitive to a device operator and threads CopyToDevice/
CopyFromDevice at each host/device boundary, FuseCopies then cancels out
adjacent copy pairs that don't actually need to cross the boundary.

It runs entirely against an in-memory fake device; no GPU is required.`,
		RunE: runCompile,
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadYAML(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	if deviceIndex >= 0 {
		cfg.Device.Index = deviceIndex
	}
	if arch != "" {
		cfg.Device.Arch = arch
	}
	if elementType != "" {
		cfg.Compiler.ElementType = elementType
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := dtype.Parse(cfg.Compiler.ElementType)
	if err != nil {
		return err
	}
	logger := tglog.New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))
	logger.Info("loaded config", "config", cfg.String())

	g := demoGraph()
	fmt.Println("\nbefore substitution:")
	printGraph(g)

	dev := faked.New()
	cache := kernel.NewCache()
	dyn := symtab.New().Snapshot()
	opts := driver.CompileOptions{Arch: cfg.Device.Arch}

	logger.Debug("running substitute pass", "arch", opts.Arch)
	if err := compiler.Substitute(g, dev, cache, t, dyn, opts); err != nil {
		return fmt.Errorf("substitute: %w", err)
	}
	fmt.Println("\nafter substitution:")
	printGraph(g)

	logger.Debug("running copy fusion pass")
	compiler.FuseCopies(g)
	fmt.Println("\nafter copy fusion:")
	printGraph(g)

	return nil
}

// logLevel maps a config.LogConfig.Level string to its slog.Level.
// Validate() already rejects anything else, so no default case is needed
// beyond info for the zero value.
func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// demoGraph builds: a, b (host inputs) -> Add -> Sqrt -> Print, with the
// Sqrt result also marked for retrieval back to the host.
func demoGraph() *ir.Graph {
	g := ir.NewGraph()

	a := g.AddNode(&ir.Function{})
	b := g.AddNode(&ir.Function{})
	add := g.AddNode(&ir.Primitive{Kind: ir.OpAdd})
	sqrt := g.AddNode(&ir.Primitive{Kind: ir.OpSqrt})
	pr := g.AddNode(&ir.Print{})

	tracker := flatTracker(16)
	g.AddEdge(a, add, ir.Dependency{Kind: ir.DepData, Shape: tracker, InputOrder: 0})
	g.AddEdge(b, add, ir.Dependency{Kind: ir.DepData, Shape: tracker, InputOrder: 1})
	g.AddEdge(add, sqrt, ir.Dependency{Kind: ir.DepData, Shape: tracker, InputOrder: 0})
	g.AddEdge(sqrt, pr, ir.Dependency{Kind: ir.DepData, Shape: tracker, InputOrder: 0})
	g.MarkRetrieval(sqrt)

	return g
}

func flatTracker(n int) shape.Tracker {
	idx := symbolic.New(symbolic.VarTerm('z'))
	valid := symbolic.New(symbolic.NumTerm(1))
	return shape.New([]shape.Dim{shape.Lit(n)}, idx, valid)
}

func printGraph(g *ir.Graph) {
	for _, id := range g.Topological() {
		node := g.Node(id)
		fmt.Printf("  [%d] %s\n", id, describeOp(node.Op))
	}
}

func describeOp(op ir.Op) string {
	switch v := op.(type) {
	case *ir.Function:
		return "Function"
	case *ir.Print:
		return "Print"
	case *ir.Primitive:
		return fmt.Sprintf("Primitive(%v)", v.Kind)
	default:
		return fmt.Sprintf("%T", v)
	}
}
