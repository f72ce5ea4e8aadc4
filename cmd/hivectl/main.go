// Command hivectl runs a small demo graph end to end: a "plan" node that
// calls a model for a reply and an "act" node that logs that reply (the
// HTTP tool is registered in the environment but no node calls it), with
// checkpointing, structured logging, tracing and Prometheus
// metrics all wired to real backends selected by flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hiveflow/hive/hive"
	"github.com/hiveflow/hive/hive/event"
	"github.com/hiveflow/hive/hive/metrics"
	"github.com/hiveflow/hive/hive/model"
	"github.com/hiveflow/hive/hive/model/anthropic"
	"github.com/hiveflow/hive/hive/model/google"
	"github.com/hiveflow/hive/hive/model/openai"
	"github.com/hiveflow/hive/hive/store"
	"github.com/hiveflow/hive/hive/tool"
)

func main() {
	var (
		provider    = flag.String("provider", "mock", "model provider: mock, anthropic, openai, google")
		apiKey      = flag.String("api-key", os.Getenv("HIVE_MODEL_API_KEY"), "API key for the selected provider")
		modelName   = flag.String("model", "", "model name override")
		prompt      = flag.String("prompt", "What is the capital of France?", "user prompt for the plan node")
		storeKind   = flag.String("store", "memory", "checkpoint store: memory, sqlite, mysql")
		storeDSN    = flag.String("dsn", "hive.db", "sqlite path or mysql DSN")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
		threadID    = flag.String("thread", "demo-thread", "thread ID to run")
	)
	flag.Parse()

	log.SetFlags(0)

	modelClient := buildModelClient(*provider, *apiKey, *modelName)
	checkpointStore, closeStore := buildCheckpointStore(*storeKind, *storeDSN)
	defer closeStore()

	registry := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(registry)
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("hivectl: metrics server stopped: %v", err)
			}
		}()
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	logger := event.NewStructuredLogger(os.Stdout)
	observers := event.NewMulti(event.NewLogEmitter(os.Stdout), event.NewOTelEmitter(tp))

	graph, err := buildGraph()
	if err != nil {
		log.Fatalf("hivectl: compile graph: %v", err)
	}

	env := hive.Environment{
		Model:   modelClient,
		Tools:   tool.NewRegistry(tool.NewHTTPTool()),
		Log:     logger,
		Metrics: sink,
	}

	runtime := hive.NewRuntime(graph, env, nil, checkpointStore)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := hive.NewRunOptions(func(o *hive.RunOptions) {
		o.CheckpointPolicy = hive.EveryStepCheckpoints()
	})

	handle := runtime.Run(ctx, hive.ThreadID(*threadID), hive.Input{
		Writes: []hive.Write{{Channel: "prompt", Value: *prompt}},
	}, opts)

	go observers.Run(context.Background(), handle.Events())

	outcome, err := handle.Wait()
	if err != nil {
		log.Fatalf("hivectl: run failed: %v", err)
	}

	fmt.Printf("outcome: kind=%d checkpoint=%s\n", outcome.Kind, outcome.CheckpointID)
	if outcome.Output != nil {
		fmt.Printf("output: %+v\n", outcome.Output.FullStore)
	}
}

func buildModelClient(provider, apiKey, modelName string) hive.ModelClient {
	switch provider {
	case "anthropic":
		return anthropic.New(apiKey, modelName)
	case "openai":
		return openai.New(apiKey, modelName)
	case "google":
		return google.New(apiKey, modelName)
	default:
		return &model.Mock{Responses: []hive.ChatOut{
			{Message: hive.ChatMessage{Role: "assistant", Content: "The capital of France is Paris."}},
		}}
	}
}

func buildCheckpointStore(kind, dsn string) (hive.CheckpointStore, func()) {
	switch kind {
	case "sqlite":
		s, err := store.NewSQLiteStore(dsn)
		if err != nil {
			log.Fatalf("hivectl: open sqlite store: %v", err)
		}
		return s, func() { _ = s.Close() }
	case "mysql":
		s, err := store.NewMySQLStore(dsn)
		if err != nil {
			log.Fatalf("hivectl: open mysql store: %v", err)
		}
		return s, func() { _ = s.Close() }
	default:
		return store.NewMemoryStore(), func() {}
	}
}

func buildGraph() (*hive.CompiledGraph, error) {
	registry, err := hive.NewRegistry([]hive.ChannelSpec{
		hive.NewChannelSpec[string]("prompt", hive.ScopeGlobal, hive.LastWriteWins(), hive.UpdateSingle, hive.PersistenceCheckpointed, func() string { return "" }, hive.JSONCodec[string]("string")),
		hive.NewChannelSpec[string]("reply", hive.ScopeGlobal, hive.LastWriteWins(), hive.UpdateSingle, hive.PersistenceCheckpointed, func() string { return "" }, hive.JSONCodec[string]("string")),
	})
	if err != nil {
		return nil, err
	}

	b := hive.NewBuilder(registry)
	b.StartAt("plan")
	b.AddNode("plan", planNode, nil, hive.Always())
	b.AddEdge("plan", "act")
	b.AddNode("act", actNode, nil, hive.Always())

	return b.Compile()
}

func planNode(ctx context.Context, view hive.StoreView, rc hive.RunContext, emit hive.TaskEmitter, env hive.Environment) (hive.NodeOutput, error) {
	prompt, _ := view.Get("prompt").(string)
	out, err := env.Model.Chat(ctx, []hive.ChatMessage{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return hive.NodeOutput{}, err
	}
	emit.Debug("model_reply", map[string]any{"content": out.Message.Content})
	return hive.NodeOutput{
		Writes: []hive.Write{{Channel: "reply", Value: out.Message.Content}},
		Next:   hive.UseGraphEdges(),
	}, nil
}

func actNode(ctx context.Context, view hive.StoreView, rc hive.RunContext, emit hive.TaskEmitter, env hive.Environment) (hive.NodeOutput, error) {
	reply, _ := view.Get("reply").(string)
	env.Log.Info("act node observed reply", "reply", reply)
	return hive.NodeOutput{Next: hive.End()}, nil
}
