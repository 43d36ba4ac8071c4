package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/skyhookml/distrain/distrain"
	"github.com/skyhookml/distrain/params"
)

// Standalone parameter server: serves the weights of a saved model file so
// that externally launched workers can train against it.
func main() {
	if len(os.Args) < 4 {
		fmt.Println("usage: ./paramserver [port] [transport] [model file] [mode]")
		fmt.Println("example: ./paramserver 4000 http model.json asynchronous")
		return
	}
	port := distrain.ParseInt(os.Args[1])
	transport := os.Args[2]
	modelFname := os.Args[3]
	mode := distrain.Asynchronous
	if len(os.Args) >= 5 {
		mode = distrain.Mode(os.Args[4])
	}
	if !mode.Valid() || mode == distrain.Synchronous {
		fmt.Printf("mode must be asynchronous or hogwild, got %s\n", mode)
		return
	}

	data, err := ioutil.ReadFile(modelFname)
	if err != nil {
		panic(err)
	}
	// accept either a saved orchestrator file or a bare model descriptor
	var saved struct {
		Model *distrain.ModelDescriptor `json:"model"`
	}
	var desc distrain.ModelDescriptor
	if err := json.Unmarshal(data, &saved); err == nil && saved.Model != nil {
		desc = *saved.Model
	} else if err := json.Unmarshal(data, &desc); err != nil {
		panic(distrain.SerializationError{Reason: fmt.Sprintf("cannot read %s: %v", modelFname, err)})
	}
	if len(desc.Weights) == 0 {
		panic(distrain.SerializationError{Reason: fmt.Sprintf("%s has no weights", modelFname)})
	}

	store := params.NewStore(mode, desc.Weights)
	server, err := params.NewServer(transport, port, store)
	if err != nil {
		panic(err)
	}
	if err := server.Start(); err != nil {
		panic(err)
	}
	log.Printf("[paramserver] serving %d tensors on %s (%s, mode=%s)", len(desc.Weights), server.Addr(), transport, mode)
	select {}
}
