package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/warehouselabs/replica-gateway/client"
)

var addr = flag.String("addr", "localhost:8098", "the address to connect to")
var username = flag.String("user", "", "the api username")
var password = flag.String("pass", "", "the api password")
var project = flag.String("project", "testproj", "the warehouse project to use")
var dataset = flag.String("dataset", "smoke_orders", "the dataset to reconcile")

func main() {
	flag.Parse()

	log.Printf("replica-gateway test-app starting...")

	cli, err := client.New(*addr, &client.Options{
		Username: *username,
		Password: *password,
	})
	if err != nil {
		log.Fatalf("failed to create the client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// the session tells us the gateway is up and what it converged so far
	{
		session, err := cli.GetSession(ctx)
		if err != nil {
			log.Fatalf("failed to fetch the session: %s", err)
		}
		log.Printf("session %s started at %s with %d datasets",
			session.SessionId, session.StartedAt, len(session.Datasets))
	}

	// reconcile a fresh dataset into a two replica topology
	{
		result, err := cli.Reconcile(ctx, *project, *dataset, &client.ReconcileOptions{
			Replicas:      []string{"us-east1", "us-west1"},
			Primary:       "us-east1",
			CreateDataset: true,
		})
		if err != nil {
			log.Fatalf("failed to reconcile: %s", err)
		}
		log.Printf("reconcile outcome %s (created: %v), applied %d operations",
			result.Outcome, result.CreatedDataset, len(result.AppliedOperations))
	}

	// the observed topology should now match what we asked for
	{
		topology, err := cli.GetTopology(ctx, *project, *dataset)
		if err != nil {
			log.Fatalf("failed to fetch the topology: %s", err)
		}
		log.Printf("observed replicas %v with primary %q", topology.Replicas, topology.Primary)
	}

	// planning a shrink reports the operations without touching anything
	{
		ops, err := cli.Plan(ctx, *project, *dataset, []string{"us-east1"}, "us-east1")
		if err != nil {
			log.Fatalf("failed to plan: %s", err)
		}
		for _, op := range ops {
			log.Printf("planned operation: %s %s", op.Kind, op.Location)
		}
	}

	// a second reconcile in the same session answers from the session pin
	{
		result, err := cli.Reconcile(ctx, *project, *dataset, &client.ReconcileOptions{
			Replicas: []string{"us-east1", "us-west1"},
			Primary:  "us-east1",
		})
		if err != nil {
			log.Fatalf("failed to reconcile again: %s", err)
		}
		log.Printf("second reconcile outcome %s", result.Outcome)
	}

	log.Printf("test-app completed successfully")
}
