// Command tinynpu runs a hex memory image through the accelerator simulator.
//
// The image holds instructions and operand data in one byte-addressable
// space; execution starts at address 0 and ends at the first HALT. Run
// statistics are persisted so repeated invocations accumulate.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/tinynpu/tinynpu/internal/isa"
	"github.com/tinynpu/tinynpu/internal/machine"
	"github.com/tinynpu/tinynpu/internal/storage"
)

var (
	imagePath  = flag.String("image", "", "hex memory image to execute (required)")
	configPath = flag.String("config", "", "JSON geometry override")
	maxSteps   = flag.Int("steps", 1_000_000, "instruction budget before the run is declared hung")
	startPC    = flag.Uint("pc", 0, "initial program counter")
	trace      = flag.Bool("trace", false, "log every instruction before it executes")
	dumpAddr   = flag.Uint("dump-addr", 0, "memory address to dump after the run")
	dumpLen    = flag.Int("dump-len", 0, "bytes to dump after the run (0 disables)")
	noStats    = flag.Bool("no-stats", false, "skip persisting run statistics")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()
	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	geom, err := loadGeometry(*configPath)
	if err != nil {
		log.Fatalf("geometry: %v", err)
	}

	m, err := machine.New(geom)
	if err != nil {
		log.Fatalf("machine: %v", err)
	}
	if *trace {
		m.Tracer = func(pc uint32, in isa.Instruction) {
			log.Printf("0x%06X  %s", pc, in)
		}
	}

	img, err := os.Open(*imagePath)
	if err != nil {
		log.Fatalf("image: %v", err)
	}
	n, err := m.Memory().LoadHexImage(img)
	img.Close()
	if err != nil {
		log.Fatalf("image %s: %v", *imagePath, err)
	}
	log.Printf("loaded %d bytes from %s", n, *imagePath)

	m.SetPC(uint32(*startPC))
	start := time.Now()
	runErr := m.Run(*maxSteps)
	elapsed := time.Since(start)

	stats := m.Stats()
	if runErr != nil {
		log.Printf("run failed after %d instructions: %v", stats.Instructions, runErr)
	} else {
		log.Printf("halted after %d instructions in %s", stats.Instructions, elapsed)
	}
	for op, count := range stats.ByOpcode {
		log.Printf("  %-7s %d", op, count)
	}

	if !*noStats {
		recordRun(*imagePath, stats, elapsed, runErr != nil)
	}

	if *dumpLen > 0 {
		if err := m.Memory().DumpHexImage(os.Stdout, uint32(*dumpAddr), *dumpLen); err != nil {
			log.Fatalf("dump: %v", err)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}

// recordRun persists the result; statistics are best-effort and never fail
// the run.
func recordRun(image string, stats machine.Stats, elapsed time.Duration, failed bool) {
	store, err := storage.NewStorage()
	if err != nil {
		log.Printf("Warning: stats unavailable: %v", err)
		return
	}
	defer store.Close()

	err = store.RecordRun(&storage.RunResult{
		Image:        image,
		Instructions: stats.Instructions,
		ByOpcode:     stats.ByOpcode,
		Duration:     elapsed,
		Failed:       failed,
	})
	if err != nil {
		log.Printf("Warning: recording run: %v", err)
		return
	}

	total, err := store.LoadStats()
	if err == nil {
		log.Printf("lifetime: %d programs, %d instructions",
			total.ProgramsRun, total.Instructions)
	}
}

func loadGeometry(path string) (machine.Geometry, error) {
	geom := machine.DefaultGeometry()
	if path == "" {
		return geom, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return geom, err
	}
	if err := json.Unmarshal(data, &geom); err != nil {
		return geom, err
	}
	return geom, geom.Validate()
}
