/*
Package pipeprobe inspects dataset pipelines declared in YAML training configurations.

It finds dataset definitions in a configuration tree, runs a dataset's first
entry through its transform pipeline in an external interpreter and reports a
snapshot of the entry after every step, so the effect of each transform can be
diffed field by field.

# Concept

A configuration declares constructible objects by a target symbol plus
parameters. pipeprobe decides which of them are datasets using a symbol table
(class records with their bases), follows references between subtrees and
builds a DatasetNode for each, including the wrapped datasets it decorates and
its transform list. A probe run turns a node into a RunRequest, launches the
probe script and streams protocol events back; a run always ends with exactly
one Complete event, whatever happens to the process.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/pipeprobe"
		"github.com/aretw0/pipeprobe/pkg/domain"
	)

	func main() {
		probe, err := pipeprobe.New()
		if err != nil {
			log.Fatal(err)
		}

		doc, err := probe.Load("configs/train.yaml")
		if err != nil {
			log.Fatal(err)
		}
		for _, entry := range probe.Extract(doc) {
			fmt.Println(entry.Address, entry.Node.DisplayName)
		}

		req, err := probe.BuildRequest(doc, "train.dataset", nil)
		if err != nil {
			log.Fatal(err)
		}
		report, err := probe.RunReport(context.Background(), "cli", req)
		if err != nil {
			log.Fatal(err)
		}
		for _, ds := range report.Datasets {
			for _, step := range ds.Diffs() {
				fmt.Printf("%s/%s: %+v\n", ds.Name, step.StepLabel, step.Summary)
			}
		}
		_ = domain.EventComplete
	}

# Architecture

  - pkg/domain: data model, events and the snapshot diff engine
  - pkg/topology and pkg/symbols: configuration parsing and dataset extraction
  - pkg/protocol: the line protocol between the probe script and the host
  - pkg/adapters/process: launching and supervising probe processes
  - pkg/orchestrator and pkg/session: event ordering, reports and per-session runs
  - pkg/adapters/http and pkg/adapters/mcp: network surfaces over the same operations
*/
package pipeprobe
