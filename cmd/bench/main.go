package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/i5heu/HPRingBuffer/internal/testbench"
	"github.com/i5heu/HPRingBuffer/pkg/config"
)

// BenchmarkResult holds results for one test run.
type BenchmarkResult struct {
	Implementation      string  `json:"implementation"`
	Mode                string  `json:"mode"`
	Slots               uint64  `json:"slots"`
	NumProducers        int     `json:"num_producers"`
	NumConsumers        int     `json:"num_consumers"`
	NumMessages         int64   `json:"num_messages"`          // produced count
	NumMessagesConsumed int64   `json:"num_messages_consumed"` // consumed count
	FullRetries         int64   `json:"full_retries"`
	EmptyRetries        int64   `json:"empty_retries"`
	TestDuration        string  `json:"test_duration,omitempty"` // timed mode only
	ActualElapsed       string  `json:"actual_elapsed"`          // measured time
	Throughput          float64 `json:"throughput_msgs_sec"`     // based on consumed count
	Timestamp           int64   `json:"timestamp"`
	GoVersion           string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete test session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// commonCPUs are the GOMAXPROCS values walked when no -cpu is given.
var commonCPUs = []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}

func main() {
	configFile := flag.String("config", "", "Optional YAML file with benchmark settings; flags override it")
	mode := flag.String("mode", "", "count: one producer/one consumer move -count messages; timed: producers/consumers run for -duration")
	slots := flag.Uint64("slots", 0, "Ring slot count (power of two)")
	count := flag.Int64("count", 0, "Messages per run in count mode")
	duration := flag.Duration("duration", 0, "Run length in timed mode")
	testIterations := flag.Int("iter", 0, "Number of test iterations per setting")
	cpuMaxFlag := flag.Int("cpu", -1, "GOMAXPROCS to test: -1 keeps the config value, 0 walks common CPU/vCPU values up to runtime.NumCPU(), >0 tests only that value")
	implFlag := flag.String("impl", "", "Comma separated implementation names or packages to run")
	jsonExport := flag.Bool("json", false, "Append results as JSON to -jsonfile")
	markdownTable := flag.Bool("markdown-table", false, "Output markdown table from -jsonfile and exit")
	jsonFile := flag.String("jsonfile", "", "Path to the JSON results file")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	applyFlags(&cfg, *mode, *slots, *count, *duration, *testIterations, *cpuMaxFlag, *implFlag, *jsonFile)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *markdownTable {
		if err := outputMarkdownTable(os.Stdout, cfg.JSONFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	impls := selectImplementations(getImplementations(), cfg.Implementations)
	if len(impls) == 0 {
		fmt.Fprintf(os.Stderr, "No implementation matches %q\n", strings.Join(cfg.Implementations, ","))
		os.Exit(1)
	}

	trueCPUCount := runtime.NumCPU()
	cpuSettings := cpuSettingsFor(cfg.CPU, trueCPUCount)

	concurrencyConfigs := []testbench.Config{{NumProducers: 1, NumConsumers: 1}}
	if cfg.Mode == config.ModeTimed {
		concurrencyConfigs = cfg.Concurrency
	}

	var bar *progressbar.ProgressBar
	if *progressFlag {
		totalTests := len(cpuSettings) * len(concurrencyConfigs) * cfg.Iterations * len(impls)
		bar = progressbar.NewOptions(totalTests,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Progress"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	var allSessions []FullReport

	for _, cpus := range cpuSettings {
		runtime.GOMAXPROCS(cpus)
		sysInfo := gatherSystemInfo()
		sysInfo.NumCPU = cpus
		sysInfo.TrueCPU = trueCPUCount
		sysInfo.SimulatedCPUCount = cpus

		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", cpus)
		fmt.Printf("=============================\n")

		var results []BenchmarkResult
		for _, cc := range concurrencyConfigs {
			fmt.Printf("  [Concurrency: producers=%d, consumers=%d]\n", cc.NumProducers, cc.NumConsumers)
			for iteration := 1; iteration <= cfg.Iterations; iteration++ {
				fmt.Printf("    iteration %d/%d\n", iteration, cfg.Iterations)
				for _, impl := range impls {
					res, err := runOne(impl, cfg, cc)
					if bar != nil {
						bar.Add(1)
					}
					if err != nil {
						fmt.Fprintf(os.Stderr, "    %s => error: %v\n", impl.name, err)
						continue
					}
					fmt.Printf("    %s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
						impl.name, res.NumMessages, res.NumMessagesConsumed, res.Throughput, res.ActualElapsed)
					results = append(results, res)
				}
			}
		}

		allSessions = append(allSessions, FullReport{
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		})
	}

	if bar != nil {
		bar.Finish()
	}

	if *jsonExport {
		if err := appendSessions(cfg.JSONFile, allSessions); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote results to %s\n", cfg.JSONFile)
	}
}

// applyFlags copies every flag that was set over the loaded config.
func applyFlags(cfg *config.Config, mode string, slots uint64, count int64, duration time.Duration, iter, cpuMax int, impl, jsonFile string) {
	if mode != "" {
		cfg.Mode = mode
	}
	if slots != 0 {
		cfg.Slots = slots
	}
	if count != 0 {
		cfg.Count = count
	}
	if duration != 0 {
		cfg.Duration = duration
	}
	if iter != 0 {
		cfg.Iterations = iter
	}
	if cpuMax >= 0 {
		cfg.CPU = cpuMax
	}
	if impl != "" {
		cfg.Implementations = strings.Split(impl, ",")
	}
	if jsonFile != "" {
		cfg.JSONFile = jsonFile
	}
}

// cpuSettingsFor returns the GOMAXPROCS values to test.
func cpuSettingsFor(desired, trueCPUCount int) []int {
	if desired > 0 {
		return []int{min(desired, trueCPUCount)}
	}
	var out []int
	for _, v := range commonCPUs {
		if v <= trueCPUCount {
			out = append(out, v)
		}
	}
	return out
}

// runOne builds a fresh ring for impl and runs the configured harness on it.
func runOne(impl Implementation[int], cfg config.Config, cc testbench.Config) (BenchmarkResult, error) {
	runtime.GC()
	q, err := impl.newQueue(cfg.Slots)
	if err != nil {
		return BenchmarkResult{}, err
	}

	gen := func(i int) int { return i }

	var res testbench.Result
	var testDuration string
	switch cfg.Mode {
	case config.ModeTimed:
		res = testbench.RunTimedTest(q, cc, cfg.Duration, gen)
		testDuration = cfg.Duration.String()
	default:
		res = testbench.RunFixedCount(q, cfg.Count, gen)
	}

	return BenchmarkResult{
		Implementation:      impl.name,
		Mode:                cfg.Mode,
		Slots:               cfg.Slots,
		NumProducers:        cc.NumProducers,
		NumConsumers:        cc.NumConsumers,
		NumMessages:         res.Produced,
		NumMessagesConsumed: res.Consumed,
		FullRetries:         res.FullRetries,
		EmptyRetries:        res.EmptyRetries,
		TestDuration:        testDuration,
		ActualElapsed:       res.Elapsed.String(),
		Throughput:          res.Throughput(),
		Timestamp:           time.Now().Unix(),
		GoVersion:           runtime.Version(),
	}, nil
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() SystemInfo {
	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      runtime.NumCPU(),
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      runtime.GOARCH,
		TotalMemory: totalMemory,
	}
}
