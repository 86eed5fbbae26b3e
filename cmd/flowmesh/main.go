// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command flowmesh loads a topology/rules/ip-mapping trio and runs the
// discovery, evaluation, or critical-flow metric operations against it, or
// serves them over HTTP. Dispatch style follows the teacher's flywall-sim
// (cmd/flywall-sim/main.go): a top-level flag set, subcommand taken from the
// remaining args, log.Fatalf on setup failure.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"flowmesh.dev/flowmesh/internal/discovery"
	"flowmesh.dev/flowmesh/internal/engineconfig"
	"flowmesh.dev/flowmesh/internal/evalengine"
	"flowmesh.dev/flowmesh/internal/logging"
	"flowmesh.dev/flowmesh/internal/schema"
	"flowmesh.dev/flowmesh/internal/topo"

	"flowmesh.dev/flowmesh/internal/api"
)

func main() {
	configPath := flag.String("config", "", "path to an HCL session-defaults file")
	topologyPath := flag.String("topology", "", "path to the topology JSON document")
	rulesPath := flag.String("rules", "", "path to the rules JSON document")
	ipMappingPath := flag.String("ip-mapping", "", "path to the ip-mapping JSON document")
	listen := flag.String("listen", ":8080", "address to listen on (serve subcommand only)")
	flowName := flag.String("flow", "", "flow name (metric subcommand)")
	variant := flag.String("variant", "link", "metric variant: link, switch, or neighborhood")
	flag.Parse()

	args := flag.Args()
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
	}

	defaults := engineconfig.DefaultSessionDefaults()
	if *configPath != "" {
		var err error
		defaults, err = engineconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load session defaults: %v", err)
		}
	}

	logger := logging.Default("flowmesh")

	if subcmd == "serve" || subcmd == "" {
		runServe(logger, defaults, *listen)
		return
	}

	top, catalog := loadSession(logger, defaults, *topologyPath, *rulesPath, *ipMappingPath)

	switch subcmd {
	case "discover":
		runDiscover(catalog)
	case "evaluate":
		runEvaluate(top, catalog, args[1:])
	case "metric":
		runMetric(top, catalog, defaults, *variant, *flowName, args[1:])
	default:
		log.Fatalf("unknown command: %s (expected discover, evaluate, metric, or serve)", subcmd)
	}
}

func runServe(logger *logging.Logger, defaults engineconfig.SessionDefaults, listen string) {
	srv := api.NewServer(logger, defaults)
	logger.Info("listening", "addr", listen)
	if err := http.ListenAndServe(listen, srv.Router()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func loadSession(logger *logging.Logger, defaults engineconfig.SessionDefaults, topologyPath, rulesPath, ipMappingPath string) (*topo.Topology, schema.Catalog) {
	if topologyPath == "" || rulesPath == "" || ipMappingPath == "" {
		log.Fatal("discover/evaluate/metric require -topology, -rules, and -ip-mapping")
	}

	topologyJSON, err := os.ReadFile(topologyPath)
	if err != nil {
		log.Fatalf("failed to read topology file: %v", err)
	}
	rulesJSON, err := os.ReadFile(rulesPath)
	if err != nil {
		log.Fatalf("failed to read rules file: %v", err)
	}
	ipMappingJSON, err := os.ReadFile(ipMappingPath)
	if err != nil {
		log.Fatalf("failed to read ip-mapping file: %v", err)
	}

	top, diag, err := schema.LoadSession(topologyJSON, rulesJSON, ipMappingJSON)
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}
	for name := range diag.RuleAttrs {
		logger.Warn("unknown rule attribute", "name", name)
	}
	for name := range diag.MatchAttrs {
		logger.Warn("unknown match attribute", "name", name)
	}
	for name := range diag.ActionVerbs {
		logger.Warn("unknown action verb", "name", name)
	}

	flows := discovery.DiscoverCatalog(top, defaults.MinimumHops)
	catalog := schema.BuildCatalog(flows)
	return top, catalog
}

func runDiscover(catalog schema.Catalog) {
	printJSON(catalog)
}

func runEvaluate(top *topo.Topology, catalog schema.Catalog, downLinks []string) {
	var flowNames []string
	for name := range catalog {
		flowNames = append(flowNames, name)
	}
	failed := evalengine.RunSingleEvaluation(top, catalog, flowNames, downLinks)
	printJSON(map[string][]string{"failed": failed})
}

func runMetric(top *topo.Topology, catalog schema.Catalog, defaults engineconfig.SessionDefaults, variant, flowName string, rest []string) {
	if flowName == "" {
		log.Fatal("metric requires -flow")
	}
	params := evalengine.Parameters{
		FailureRate: defaults.FailureRate,
		TimeWindow:  defaults.TimeWindow,
		Tolerance:   defaults.Tolerance,
	}

	var (
		result evalengine.MetricResult
		err    error
	)
	switch variant {
	case "link":
		result, err = evalengine.LinkMetric(top, catalog, flowName, rest, params)
	case "switch":
		result, err = evalengine.SwitchMetric(top, catalog, flowName, rest, params)
	case "neighborhood":
		if len(rest) < 1 {
			log.Fatal("neighborhood metric requires a center switch name as the first positional argument")
		}
		center := rest[0]
		hops := 1
		result, err = evalengine.NeighborhoodMetric(top, catalog, center, hops, params)
	default:
		log.Fatalf("unknown metric variant: %s (expected link, switch, or neighborhood)", variant)
	}
	if err != nil {
		log.Fatalf("metric failed: %v", err)
	}
	printJSON(result)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
