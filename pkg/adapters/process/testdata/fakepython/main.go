// Command fakepython stands in for a Python interpreter in tests. It is invoked
// as `fakepython <script> <request.json>` and plays the scenario named by the
// script's contents.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"
)

const marker = "===PROBE_EVENT==="

func emit(payload string) {
	fmt.Println(marker + payload)
}

func record(scriptPath, requestPath string, request []byte) {
	out := os.Getenv("FAKEPYTHON_RECORD")
	if out == "" {
		return
	}
	data, _ := json.Marshal(map[string]string{
		"script":                  scriptPath,
		"requestPath":             requestPath,
		"request":                 string(request),
		"PYTHONUTF8":              os.Getenv("PYTHONUTF8"),
		"PYTHONIOENCODING":        os.Getenv("PYTHONIOENCODING"),
		"PYTHONDONTWRITEBYTECODE": os.Getenv("PYTHONDONTWRITEBYTECODE"),
		"PYTHONPATH":              os.Getenv("PYTHONPATH"),
	})
	_ = os.WriteFile(out, data, 0o600)
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: fakepython <script> <request>")
		os.Exit(2)
	}
	script, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	request, _ := os.ReadFile(os.Args[2])
	record(os.Args[1], os.Args[2], request)

	start := `{"type":"dataset_start","datasetName":"ImageDataset","datasetTarget":"pkg.ImageDataset","datasetPath":"ds"}`

	switch strings.TrimSpace(string(script)) {
	case "success":
		fmt.Println("importing torch...")
		emit(start)
		emit(`{"type":"snapshot","stepLabel":"ImageDataset","stepIndex":0,"fields":[{"key":"hr","pythonType":"torch.Tensor","shape":"[3, 8, 8]","dtype":"float32"}],"isBatched":false}`)
		emit(`{"type":"snapshot","stepLabel":"Normalize","stepIndex":1,"fields":[{"key":"hr","pythonType":"torch.Tensor","shape":"[3, 8, 8]","dtype":"float64"}],"isBatched":false}`)
		emit(`{"type":"dataset_end","datasetPath":"ds"}`)
		emit(`{"type":"complete","executionTimeMs":123}`)

	case "step_error":
		emit(start)
		emit(`{"type":"snapshot","stepLabel":"ImageDataset","stepIndex":0,"fields":[],"isBatched":false}`)
		emit(`{"type":"step_error","stepLabel":"Crop","stepIndex":1,"errorMessage":"crop too large","errorTraceback":"Traceback..."}`)
		emit(`{"type":"dataset_end","datasetPath":"ds"}`)
		emit(`{"type":"complete","executionTimeMs":5}`)

	case "garbage":
		fmt.Println("plain noise")
		emit(`{broken`)
		emit(`{"type":"teleport"}`)
		emit(start)
		emit(`{"type":"complete","executionTimeMs":9}`)

	case "hang":
		emit(start)
		time.Sleep(time.Hour)

	case "stubborn":
		signal.Ignore(os.Interrupt)
		emit(start)
		time.Sleep(time.Hour)

	case "crash":
		emit(start)
		fmt.Fprintln(os.Stderr, "Traceback (most recent call last):\nRuntimeError: boom")
		os.Exit(3)

	case "linger":
		emit(start)
		emit(`{"type":"complete","executionTimeMs":1}`)
		emit(`{"type":"dataset_end","datasetPath":"ds"}`)
		time.Sleep(time.Minute)

	case "silent":
		fmt.Println("nothing to see")

	case "index":
		fmt.Println("===PROBE_INDEX===" + `{"version":1,"symbols":[{"module":"pkg","name":"Dataset","bases":[]},{"module":"pkg.image","name":"ImageDataset","bases":["pkg.Dataset"]}]}`)

	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", script)
		os.Exit(2)
	}
}
