// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command rhiinfo prints the backend, adapter, limits and raytracing
// support of the default device, and the native parameters a sample
// pipeline layout resolves to.
//
// Usage:
//
//	rhiinfo [-config rhi.toml] [-backend vulkan] [-noop] [-v]
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"

	"github.com/gogpu/rhi"
	_ "github.com/gogpu/rhi/backend/all"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		backend    = flag.String("backend", "", "backend name (dx12, metal, vulkan)")
		noop       = flag.Bool("noop", false, "use the noop execution layer")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "rhiinfo",
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	rhi.SetLogger(slog.New(logger))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("config", "err", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *noop {
		cfg.Execution = rhi.ExecutionNoop
	}

	if err := run(os.Stdout, cfg); err != nil {
		logger.Fatal("rhiinfo", "err", err)
	}
}

func loadConfig(path string) (rhi.Config, error) {
	if path == "" {
		return rhi.DefaultConfig(), nil
	}
	return rhi.LoadConfig(path)
}

func run(w io.Writer, cfg rhi.Config) error {
	inst, err := rhi.CreateInstance(cfg)
	if err != nil {
		return err
	}
	defer inst.Destroy()

	dev, err := inst.CreateDevice()
	if err != nil {
		return err
	}
	defer dev.Destroy()

	info := dev.AdapterInfo()
	lim := dev.Limits()
	fmt.Fprintf(w, "backend:     %s (%s execution)\n", dev.Backend(), inst.Config().Execution)
	fmt.Fprintf(w, "device:      %s\n", dev.ID())
	fmt.Fprintf(w, "adapter:     %s (%s)\n", info.Name, info.Type)
	fmt.Fprintf(w, "raytracing:  %t\n", dev.IsRaytracingSupported())
	fmt.Fprintf(w, "bind groups: %d x %d bindings\n", lim.MaxBindGroups, lim.MaxBindingsPerBindGroup)
	fmt.Fprintf(w, "texture 2D:  %d\n", lim.MaxTextureDimension2D)
	fmt.Fprintf(w, "workgroup:   %d x %d x %d\n",
		lim.MaxComputeWorkgroupSizeX, lim.MaxComputeWorkgroupSizeY, lim.MaxComputeWorkgroupSizeZ)

	return printLayout(w, dev)
}

// sampleTables is a frame table, a material table with a bindless texture
// array and a compute-only output table.
var sampleTables = []rhi.BindTableLayoutDescriptor{
	{Label: "frame", Index: 0, Elements: []rhi.BindTableLayoutElement{
		{Slot: 0, Type: rhi.BindTypeUniformBuffer, Visibility: rhi.ShaderStageAll},
		{Slot: 1, Type: rhi.BindTypeSampler, Visibility: rhi.ShaderStageFragment},
	}},
	{Label: "material", Index: 1, Elements: []rhi.BindTableLayoutElement{
		{Slot: 0, Type: rhi.BindTypeStorageBuffer, Visibility: rhi.ShaderStageVertex | rhi.ShaderStageFragment},
		{Slot: 1, Type: rhi.BindTypeTexture2D, Visibility: rhi.ShaderStageFragment, Count: 1024},
	}},
	{Label: "output", Index: 2, Elements: []rhi.BindTableLayoutElement{
		{Slot: 0, Type: rhi.BindTypeStorageTexture2D, Visibility: rhi.ShaderStageCompute},
	}},
}

func printLayout(w io.Writer, dev rhi.Device) error {
	tables := make([]rhi.BindTableLayout, 0, len(sampleTables))
	for i := range sampleTables {
		t, err := dev.CreateBindTableLayout(&sampleTables[i])
		if err != nil {
			return err
		}
		defer t.Destroy()
		tables = append(tables, t)
	}
	layout, err := dev.CreatePipelineLayout(&rhi.PipelineLayoutDescriptor{Label: "sample", Tables: tables})
	if err != nil {
		return err
	}
	defer layout.Destroy()

	fmt.Fprintf(w, "\nsample layout: %d native parameters\n", layout.ParamCount())
	for _, desc := range sampleTables {
		for _, e := range desc.Elements {
			for _, stage := range e.Visibility.Stages() {
				if p, ok := layout.Resolve(stage, desc.Index, e.Slot, e.Type); ok {
					fmt.Fprintf(w, "  %-8s table %d slot %d %-16s -> param %d\n", stage, desc.Index, e.Slot, e.Type, p)
				}
			}
		}
	}
	return nil
}
