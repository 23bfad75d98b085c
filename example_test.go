package pipeprobe_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aretw0/pipeprobe"
	"github.com/aretw0/pipeprobe/pkg/config"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/ports"
	"github.com/aretw0/pipeprobe/pkg/symbols"
)

const exampleConfig = `train:
  _target: vision.datasets.Resized
  params:
    size: 32
    dataset:
      _target: vision.datasets.Folder
      params:
        root: /data/train
`

// ExampleNew demonstrates extraction and a probe run with a custom Prober.
// A real deployment uses the default process runner, which launches Python.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "pipeprobe-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "train.yaml")
	if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
		log.Fatal(err)
	}

	// 1. Tell the extractor which classes are datasets.
	table := symbols.NewTable(
		symbols.Record{Module: "torch.utils.data", Name: "Dataset"},
		symbols.Record{Module: "vision.datasets", Name: "Folder", Bases: []string{"torch.utils.data.Dataset"}},
		symbols.Record{Module: "vision.datasets", Name: "Resized", Bases: []string{"torch.utils.data.Dataset"}},
	)

	// 2. Stand in for the interpreter with a fixed event sequence.
	prober := ports.ProberFunc(func(ctx context.Context, req domain.RunRequest, onEvent func(domain.Event)) {
		onEvent(domain.DatasetStart{Name: "Folder", Path: req.DatasetPath + ".params.dataset"})
		onEvent(domain.Snapshot{EntrySnapshot: domain.EntrySnapshot{StepLabel: "Original", Fields: []domain.FieldSnapshot{{Key: "image", PythonType: "Tensor", Shape: "(3, 64, 64)"}}}})
		onEvent(domain.DatasetEnd{Path: req.DatasetPath + ".params.dataset"})
		onEvent(domain.Complete{ExecutionTimeMs: 1})
	})

	s := config.Default()
	s.SymbolIndex = ""
	s.BaseDataset = "torch.utils.data.Dataset"
	probe, err := pipeprobe.New(
		pipeprobe.WithSettings(s),
		pipeprobe.WithSymbols(table),
		pipeprobe.WithRunner(prober),
	)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Inspect the wrapped chain.
	doc, err := probe.Load(path)
	if err != nil {
		log.Fatal(err)
	}
	node, err := probe.ExtractAt(doc, "train")
	if err != nil {
		log.Fatal(err)
	}
	for _, n := range node.Chain() {
		fmt.Printf("%s %q\n", n.DisplayName, n.DataRoot)
	}

	// 4. Probe it.
	req, err := probe.BuildRequest(doc, "train", map[string]string{"/data/train": "/mnt/train"})
	if err != nil {
		log.Fatal(err)
	}
	report, err := probe.RunReport(context.Background(), "example", req)
	if err != nil {
		log.Fatal(err)
	}
	for _, ds := range report.Datasets {
		fmt.Println(ds.Name, len(ds.Snapshots), ds.Failed())
	}

	// Output:
	// Folder "/data/train"
	// Resized ""
	// Folder 1 false
}
