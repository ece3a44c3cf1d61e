package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/adfharrison1/go-docload/pkg/domain"
	"github.com/adfharrison1/go-docload/pkg/loader"
	"github.com/adfharrison1/go-docload/pkg/server"
	"github.com/adfharrison1/go-docload/pkg/storage"
)

// loadFile is the JSON shape accepted by the -load-file flag: one complete
// load request including its target and policy.
type loadFile struct {
	Store      string                   `json:"store"`
	Collection string                   `json:"collection"`
	LoadType   string                   `json:"load_type"`
	Documents  []map[string]interface{} `json:"documents"`
	KeyNames   []string                 `json:"key_names,omitempty"`
	IndexSpecs []domain.IndexSpec       `json:"index_specs,omitempty"`
	AddValues  map[string]interface{}   `json:"add_values,omitempty"`
	Validator  map[string]interface{}   `json:"validator,omitempty"`
}

func main() {
	// Command line flags
	var (
		port          = flag.String("port", "8080", "Server port")
		dataFile      = flag.String("data-file", "go-docload_data"+storage.FileExtension, "Snapshot file path for persistence")
		loadFilePath  = flag.String("load-file", "", "Run a one-shot load from a JSON request file and exit")
		numWorkers    = flag.Int("num-workers", 4, "Number of parallel load workers")
		chunkSize     = flag.Int("chunk-size", 15, "Documents per worker chunk")
		documentLimit = flag.Int("document-limit", 0, "Truncate each load to the first N documents (0 = no limit)")
		maxStepLength = flag.Int("max-step-length", 2000, "Maximum documents per pool run before outer grouping")
		readBack      = flag.Bool("read-back", false, "Verify every persisted document by refetch and compare")
		showHelp      = flag.Bool("help", false, "Show help message")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\ngo-docload bulk-loads document sets into an embedded document store.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                      # Start the HTTP load service\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -load-file request.json              # One-shot load and exit\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -num-workers 8 -chunk-size 50        # Tune load parallelism\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -read-back                           # Verify all persisted documents\n", os.Args[0])
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	loaderOptions := []loader.Option{
		loader.WithNumWorkers(*numWorkers),
		loader.WithChunkSize(*chunkSize),
		loader.WithMaxStepLength(*maxStepLength),
		loader.WithReadBackCheck(*readBack),
	}
	if *documentLimit > 0 {
		loaderOptions = append(loaderOptions, loader.WithDocumentLimit(*documentLimit))
		log.Printf("INFO: Document limit set to %d", *documentLimit)
	}

	engine := storage.NewEngine(storage.WithDataFile(*dataFile))

	if *loadFilePath != "" {
		if err := runOneShot(engine, *dataFile, *loadFilePath, loaderOptions); err != nil {
			log.Fatalf("Load failed: %v", err)
		}
		return
	}

	// Create a new server around the shared engine
	srv := server.NewServer(engine, loaderOptions...)

	// Initialize engine from snapshot
	log.Printf("INFO: Loading data from: %s", *dataFile)
	srv.InitDB(*dataFile)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:    ":" + *port,
		Handler: srv.Router(),
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting go-docload server on :%s", *port)
		log.Printf("API endpoints available at http://localhost:%s", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Save engine state before shutdown
	log.Printf("INFO: Saving data to: %s", *dataFile)
	srv.SaveDB(*dataFile)

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

// runOneShot loads a snapshot, executes the request file, saves the snapshot
// back and reports the outcome through the exit status.
func runOneShot(engine *storage.Engine, dataFile, requestPath string, loaderOptions []loader.Option) error {
	raw, err := os.ReadFile(requestPath)
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}
	var lf loadFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		return fmt.Errorf("failed to parse request file: %w", err)
	}

	if err := engine.LoadFromFile(dataFile); err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	docs := make([]domain.Document, len(lf.Documents))
	for i, doc := range lf.Documents {
		docs[i] = domain.Document(doc)
	}

	dl := loader.New(engine, loaderOptions...)
	result, err := dl.Load(&loader.Request{
		StoreName:      lf.Store,
		CollectionName: lf.Collection,
		LoadType:       domain.LoadType(lf.LoadType),
		Documents:      docs,
		KeyNames:       lf.KeyNames,
		IndexSpecs:     lf.IndexSpecs,
		AddValues:      domain.Document(lf.AddValues),
		Validator:      domain.Document(lf.Validator),
	})
	if err != nil {
		return err
	}

	if err := engine.SaveToFile(dataFile); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if !result.Ok {
		return fmt.Errorf("%d of %d documents failed to load", len(result.Failed), len(docs))
	}
	log.Printf("INFO: Loaded %d documents into %s.%s", len(docs), lf.Store, lf.Collection)
	return nil
}
