// Command partc compiles a built-in partition scenario and reports the
// canonicalizations the pipeline chose, mirroring sublc's "compile a
// source file, report the result" shape adapted to this module's
// in-process scenario catalog (there is no on-disk partition format;
// spec.md §6 "Persisted state: none on disk").
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sbl8/partitionkernel/config"
	"github.com/sbl8/partitionkernel/device"
	"github.com/sbl8/partitionkernel/internal/scenario"
	"github.com/sbl8/partitionkernel/partition"
	"github.com/sbl8/partitionkernel/pass"
)

func main() {
	var (
		name    = flag.String("scenario", "binary_add", "Scenario to compile: "+scenario.Names())
		dotPath = flag.String("dot", "", "Write a Graphviz DOT snapshot of the scenario subgraph, as built before compilation, to this path")
		blocked = flag.Bool("blocked-layout", false, "Prefer blocked layouts during layout propagation")
		version = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("partc - partition compiler v1.0.0")
		return
	}

	sc, ok := scenario.Get(*name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q; available: %s\n", *name, scenario.Names())
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.UseBlockedLayout = *blocked

	var dotFile *os.File
	if *dotPath != "" {
		f, err := os.Create(*dotPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "partc: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		dotFile = f
	}

	engine := device.NewCPUEngine()
	sg := sc.Build(engine)
	inputs, outputs := sc.Tensors(sg)

	k := partition.NewKernel(cfg, nil)
	if dotFile != nil {
		vis := pass.NewDotVisualizer(dotFile)
		// One snapshot of the scenario subgraph as built; Compile works on
		// its own copy, so compiled rewrites do not appear in this file.
		vis.Snapshot(*name, sg)
	}

	if err := k.Compile(sg, engine, inputs, outputs); err != nil {
		fmt.Fprintf(os.Stderr, "partc: compile failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("compiled scenario %q\n", *name)
	fmt.Printf("partition id: %#x\n", k.PartitionID())
	fmt.Printf("temporary arena: %d bytes\n", k.Plan().TotalInternalTemporarySize())
	fmt.Printf("persistent arena: %d bytes\n", k.Plan().TotalInternalPersistentSize())
	for i, in := range inputs {
		fmt.Printf("input[%d]: shape=%v layout=%q\n", i, in.Shape, in.Layout.Tag)
	}
	for i, out := range outputs {
		fmt.Printf("output[%d]: shape=%v layout=%q\n", i, out.Shape, out.Layout.Tag)
	}
}
