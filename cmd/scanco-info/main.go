package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	goscanco "github.com/b71729/goscanco"
	"github.com/b71729/goscanco/header"
)

var baseFile = filepath.Base(os.Args[0])

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: error: %v\n", baseFile, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf("usage: %s [inspect|batch] [flags]\n", baseFile)
	flag.PrintDefaults()
	os.Exit(1)
}

// writerDefaults holds the keys a --config YAML file may set. Only LogLevel
// is applied (to Config.LogLevel); ComponentType is parsed but not used.
type writerDefaults struct {
	ComponentType string `yaml:"componentType"`
	LogLevel      string `yaml:"logLevel"`
}

func loadWriterDefaults(path string) (writerDefaults, error) {
	var wd writerDefaults
	data, err := os.ReadFile(path)
	if err != nil {
		return wd, err
	}
	if err := yaml.Unmarshal(data, &wd); err != nil {
		return wd, err
	}
	return wd, nil
}

func main() {
	if len(os.Args) == 1 || os.Args[1] == "--help" || os.Args[1] == "-h" {
		usage()
	}
	cmd := os.Args[1]
	switch cmd {
	case "inspect":
		startInspect(os.Args[2:])
	case "batch":
		startBatch(os.Args[2:])
	default:
		usage()
	}
}

/*
===============================================================================
    Mode: Inspect
===============================================================================
*/

func startInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "optional YAML file of writer defaults")
	check(fs.Parse(args))
	if fs.NArg() != 1 {
		fmt.Printf("usage: %s inspect [-config file.yaml] path\n", baseFile)
		os.Exit(1)
	}
	path := fs.Arg(0)

	if *configPath != "" {
		wd, err := loadWriterDefaults(*configPath)
		check(err)
		if wd.LogLevel != "" {
			cfg := goscanco.GetConfig()
			cfg.LogLevel = wd.LogLevel
			goscanco.OverrideConfig(cfg)
		}
	}

	f := goscanco.NewFacade()
	ok, err := f.CanRead(path)
	check(err)
	if !ok {
		fmt.Printf("%s: not a recognized SCANCO file\n", path)
		os.Exit(1)
	}

	check(f.ReadImageInformation(path))
	printDictionary(path, &f.Header)
}

func printDictionary(path string, h *header.HeaderData) {
	fmt.Printf("%s (%s)\n", path, h.Codec.String())
	dict := h.Dictionary()
	keys := []string{
		"Version", "PatientName", "PatientIndex", "ScannerID", "CreationDate",
		"PixelDimensions", "PhysicalDimensions", "SliceThickness",
		"MuScaling", "MuWater", "RescaleSlope", "RescaleIntercept",
		"CalibrationData", "RescaleUnits",
	}
	for _, k := range keys {
		if v, ok := dict[k]; ok {
			fmt.Printf("  %-20s %v\n", k, v)
		}
	}
}

/*
===============================================================================
    Mode: Batch
===============================================================================
*/

func startBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	limit := fs.Int("limit", 0, "max concurrently open files (0 = Config.OpenFileLimit)")
	check(fs.Parse(args))
	if fs.NArg() != 1 {
		fmt.Printf("usage: %s batch [-limit n] dir\n", baseFile)
		os.Exit(1)
	}
	dir := fs.Arg(0)

	openLimit := *limit
	if openLimit <= 0 {
		openLimit = goscanco.GetConfig().OpenFileLimit
	}

	var ok, failed int64
	err := goscanco.ConcurrentlyWalkDir(dir, openLimit, func(path string) {
		f := goscanco.NewFacade()
		canRead, err := f.CanRead(path)
		if err != nil || !canRead {
			atomic.AddInt64(&failed, 1)
			return
		}
		if err := f.ReadImageInformation(path); err != nil {
			atomic.AddInt64(&failed, 1)
			return
		}
		atomic.AddInt64(&ok, 1)
	})
	check(err)
	fmt.Printf("batch: %d recognized, %d skipped/failed\n", ok, failed)
}
