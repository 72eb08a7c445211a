package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"reqgraph/backend/internal/engine"
	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/triples"
	"reqgraph/backend/pkg/config"
	"reqgraph/backend/pkg/logger"
)

// doorModel is a small requirement diagram for the automatic door demo.
const doorModel = `<?xml version="1.0" encoding="UTF-8"?>
<xmi:XMI xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI" xmlns:trufun="http://www.trufun.net/uml">
  <contents xmi:type="trufun:TDiagram" xmi:id="d1" name="Door Requirements" stereotype="SysmlRequirementDiagram">
    <nodes xmi:type="trufun:TClassNode" xmi:id="r1" name="Door Opening" stereotype="requirement"
           text="The door shall open within 2 s of a person being detected" satisfiedBy="b1" verifiedBy="t1"/>
    <nodes xmi:type="trufun:TClassNode" xmi:id="r2" name="Obstacle Safety" stereotype="requirement"
           text="The door shall stop closing when an obstacle is detected" satisfiedBy="b2"/>
    <nodes xmi:type="trufun:TClassNode" xmi:id="b1" name="Door Controller" stereotype="block"/>
    <nodes xmi:type="trufun:TClassNode" xmi:id="b2" name="Door Sensor" stereotype="block"/>
    <nodes xmi:type="trufun:TClassNode" xmi:id="t1" name="Opening Time Test" stereotype="testCase"/>
  </contents>
</xmi:XMI>`

var doorTriples = []triples.Triple{
	{Subject: "Door Controller", Predicate: "monitors", Object: "Door Sensor", SubjectType: "Component", ObjectType: "Sensor"},
	{Subject: "Door Controller", Predicate: "drives", Object: "Door Actuator", ObjectType: "Component"},
	{Subject: "Door Sensor", Predicate: "detects", Object: "Obstacle"},
	{Subject: "Door Actuator", Predicate: "is part of", Object: "Automatic Door", ObjectType: "System"},
}

func main() {
	reset := flag.Bool("reset", false, "Delete the whole graph before seeding")
	skipConfirm := flag.Bool("y", false, "Skip confirmation prompt")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	repo, err := graph.Connect(ctx, graph.ConnectConfig{
		URI:         cfg.Neo4jURI,
		User:        cfg.Neo4jUser,
		Password:    cfg.Neo4jPassword,
		Database:    cfg.Neo4jDatabase,
		MaxPoolSize: cfg.Neo4jMaxPoolSize,
		Timeout:     cfg.Neo4jTimeout(),

		MaxTries:      uint(cfg.StoreMaxRetries),
		RetryInterval: cfg.StoreRetryInitial(),
	})
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer repo.Close(context.Background())

	if *reset {
		if !*skipConfirm && !confirm("This deletes every node in the graph. Continue? [y/N] ") {
			log.Info("Aborted")
			os.Exit(0)
		}
		if _, err := repo.Reset(ctx); err != nil {
			log.Fatal("Failed to reset graph", zap.Error(err))
		}
	}

	// Create constraints and indexes
	log.Info("Creating constraints...")
	repo.EnsureSchema(ctx)

	in := engine.NewIngestor(repo)
	model, err := in.IngestModel(ctx, "door-requirements.xmi", []byte(doorModel))
	if err != nil {
		log.Fatal("Failed to seed model", zap.Error(err))
	}
	facts, err := in.IngestTriples(ctx, doorTriples)
	if err != nil {
		log.Fatal("Failed to seed triples", zap.Error(err))
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		log.Fatal("Failed to read stats", zap.Error(err))
	}
	log.Info("Seeding complete",
		zap.Int("model_nodes_created", model.Counts.NodesCreated),
		zap.Int("triple_nodes_created", facts.Counts.NodesCreated),
		zap.Int("nodes", stats.Nodes),
		zap.Int("relationships", stats.Relationships),
	)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
