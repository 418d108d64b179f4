// Package main provides the entry point for the client-detective CLI.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/netinvestigate/client-detective/internal/app"
	"github.com/netinvestigate/client-detective/pkg/detective"
	"github.com/netinvestigate/client-detective/pkg/history"
	"github.com/netinvestigate/client-detective/pkg/meraki"
	"github.com/netinvestigate/client-detective/pkg/session"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath  string
	date        string
	from        string
	to          string
	csvPath     string
	collectDays int
	showVersion bool
}

func parseFlags() cliOptions {
	opts := cliOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.date, "date", "", "Investigation date (YYYY-MM-DD), analyzed over the following night")
	flag.StringVar(&opts.from, "from", "", "Investigation window start (RFC 3339), overrides -date")
	flag.StringVar(&opts.to, "to", "", "Investigation window end (RFC 3339), used with -from")
	flag.StringVar(&opts.csvPath, "csv", "", "Analyze a collected CSV log instead of the dashboard API")
	flag.IntVar(&opts.collectDays, "collect", 0, "Collect the last N days of events into a CSV log and exit")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func loadConfig(opts cliOptions) (*detective.Config, error) {
	if opts.configPath != "" {
		return detective.LoadConfig(opts.configPath)
	}
	cfg := detective.DefaultConfig()
	if key := os.Getenv("MERAKI_API_KEY"); key != "" {
		cfg.Meraki.APIKey = key
	}
	if org := os.Getenv("MERAKI_ORG_ID"); org != "" {
		cfg.Meraki.OrgID = org
	}
	if network := os.Getenv("MERAKI_NETWORK_ID"); network != "" {
		cfg.Meraki.NetworkID = network
	}
	return cfg, nil
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("client-detective version %s\n", version)
		return nil
	}

	// A .env file is optional and only seeds the environment.
	_ = godotenv.Load()

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := setupSignalHandler()
	reader := bufio.NewReader(os.Stdin)

	switch {
	case opts.collectDays > 0:
		return runCollect(ctx, cfg, reader, opts.collectDays)
	case opts.csvPath != "":
		return runCSV(cfg, reader, opts)
	case opts.date != "" || opts.from != "":
		return runAPI(ctx, cfg, reader, opts)
	default:
		return runInteractive(ctx, cfg, reader)
	}
}

// resolveWindow turns the date or from/to flags into an investigation
// window, defaulting to last night when neither is given.
func resolveWindow(a *app.App, opts cliOptions) (session.Window, error) {
	if opts.from != "" {
		start, err := time.Parse(time.RFC3339, opts.from)
		if err != nil {
			return session.Window{}, fmt.Errorf("parsing -from: %w", err)
		}
		if opts.to == "" {
			return session.Window{}, fmt.Errorf("-from requires -to")
		}
		end, err := time.Parse(time.RFC3339, opts.to)
		if err != nil {
			return session.Window{}, fmt.Errorf("parsing -to: %w", err)
		}
		return session.Window{Start: start, End: end}, nil
	}

	date := time.Now().In(a.Pipeline().Location()).AddDate(0, 0, -1)
	if opts.date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", opts.date, a.Pipeline().Location())
		if err != nil {
			return session.Window{}, fmt.Errorf("parsing -date: %w", err)
		}
		date = parsed
	}
	return a.Pipeline().NightWindow(date), nil
}

func runAPI(ctx context.Context, cfg *detective.Config, reader *bufio.Reader, opts cliOptions) error {
	a, err := buildApp(ctx, cfg, reader, true)
	if err != nil {
		return err
	}

	target, err := resolveWindow(a, opts)
	if err != nil {
		return err
	}

	result, err := a.InvestigateAPI(ctx, target)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runCSV(cfg *detective.Config, reader *bufio.Reader, opts cliOptions) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	target, err := resolveWindow(a, opts)
	if err != nil {
		return err
	}

	result, err := a.InvestigateCSV(opts.csvPath, target)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runCollect(ctx context.Context, cfg *detective.Config, reader *bufio.Reader, days int) error {
	a, err := buildApp(ctx, cfg, reader, true)
	if err != nil {
		return err
	}

	path, total, err := a.CollectLog(ctx, days)
	if err != nil {
		return err
	}
	if total == 0 {
		fmt.Println("No events found in the requested period.")
		return nil
	}
	fmt.Printf("Collected %d events into %s\n", total, path)
	return nil
}

// buildApp assembles the application, prompting for the API key and a
// wireless network when the configuration leaves them unset.
func buildApp(ctx context.Context, cfg *detective.Config, reader *bufio.Reader, needAPI bool) (*app.App, error) {
	if needAPI && cfg.Meraki.APIKey == "" {
		key, err := promptAPIKey(reader)
		if err != nil {
			return nil, err
		}
		cfg.Meraki.APIKey = key
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, err
	}

	if needAPI && cfg.Meraki.NetworkID == "" {
		networkID, err := chooseNetwork(ctx, a.Client(), reader, cfg.Meraki.OrgID)
		if err != nil {
			return nil, err
		}
		cfg.Meraki.NetworkID = networkID
	}
	return a, nil
}

func promptAPIKey(reader *bufio.Reader) (string, error) {
	fmt.Print("Dashboard API key: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func chooseNetwork(ctx context.Context, client *meraki.Client, reader *bufio.Reader, orgID string) (string, error) {
	if orgID == "" {
		orgs, err := client.Organizations(ctx)
		if err != nil {
			return "", err
		}
		if len(orgs) == 0 {
			return "", fmt.Errorf("API key has no accessible organizations")
		}
		if len(orgs) == 1 {
			orgID = orgs[0].ID
		} else {
			fmt.Println("Organizations:")
			for i, org := range orgs {
				fmt.Printf("  %d) %s (%s)\n", i+1, org.Name, org.ID)
			}
			idx, err := promptIndex(reader, "Select organization", len(orgs))
			if err != nil {
				return "", err
			}
			orgID = orgs[idx].ID
		}
	}

	networks, err := client.WirelessNetworks(ctx, orgID)
	if err != nil {
		return "", err
	}
	if len(networks) == 0 {
		return "", fmt.Errorf("organization %s has no wireless networks", orgID)
	}
	if len(networks) == 1 {
		fmt.Printf("Using wireless network %s (%s)\n", networks[0].Name, networks[0].ID)
		return networks[0].ID, nil
	}

	fmt.Println("Wireless networks:")
	for i, n := range networks {
		fmt.Printf("  %d) %s (%s)\n", i+1, n.Name, n.ID)
	}
	idx, err := promptIndex(reader, "Select network", len(networks))
	if err != nil {
		return "", err
	}
	return networks[idx].ID, nil
}

func promptIndex(reader *bufio.Reader, label string, max int) (int, error) {
	for {
		fmt.Printf("%s [1-%d]: ", label, max)
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("reading selection: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && n >= 1 && n <= max {
			return n - 1, nil
		}
		fmt.Println("Invalid selection.")
	}
}

func runInteractive(ctx context.Context, cfg *detective.Config, reader *bufio.Reader) error {
	for {
		fmt.Println()
		fmt.Println("Client Detective")
		fmt.Println("  1) Investigate last night via the dashboard API")
		fmt.Println("  2) Analyze a previously collected CSV log")
		fmt.Println("  3) Collect an event log for offline analysis")
		fmt.Println("  4) Exit")
		choice, err := promptIndex(reader, "Choose", 4)
		if err != nil {
			return err
		}

		switch choice {
		case 0:
			err = interactiveAPI(ctx, cfg, reader)
		case 1:
			err = interactiveCSV(cfg, reader)
		case 2:
			err = interactiveCollect(ctx, cfg, reader)
		case 3:
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func interactiveAPI(ctx context.Context, cfg *detective.Config, reader *bufio.Reader) error {
	a, err := buildApp(ctx, cfg, reader, true)
	if err != nil {
		return err
	}

	date := time.Now().In(a.Pipeline().Location()).AddDate(0, 0, -1)
	fmt.Printf("Investigation date [%s]: ", date.Format("2006-01-02"))
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading date: %w", err)
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		date, err = time.ParseInLocation("2006-01-02", trimmed, a.Pipeline().Location())
		if err != nil {
			return fmt.Errorf("parsing date: %w", err)
		}
	}

	result, err := a.InvestigateAPI(ctx, a.Pipeline().NightWindow(date))
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func interactiveCSV(cfg *detective.Config, reader *bufio.Reader) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	datasets, err := a.Store().Datasets()
	if err != nil {
		return err
	}
	path, err := chooseDataset(datasets, reader)
	if err != nil {
		return err
	}

	fmt.Print("Investigation date (YYYY-MM-DD): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading date: %w", err)
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(line), a.Pipeline().Location())
	if err != nil {
		return fmt.Errorf("parsing date: %w", err)
	}

	result, err := a.InvestigateCSV(path, a.Pipeline().NightWindow(date))
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

// chooseDataset picks a collected CSV, listing past runs that contain
// one and accepting an explicit path when none fit.
func chooseDataset(datasets []history.Dataset, reader *bufio.Reader) (string, error) {
	var candidates []string
	for _, ds := range datasets {
		for _, name := range ds.Files {
			if strings.HasSuffix(name, ".csv") && strings.Contains(name, "connections") {
				label := fmt.Sprintf("%s (%s, %s old)",
					name, ds.Created.Format("2006-01-02 15:04"), ds.Age().Round(time.Hour))
				fmt.Printf("  %d) %s\n", len(candidates)+1, label)
				candidates = append(candidates, filepath.Join(ds.Path, name))
			}
		}
	}
	if len(candidates) == 0 {
		fmt.Print("No collected logs found. Path to a CSV log: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading path: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	idx, err := promptIndex(reader, "Select log", len(candidates))
	if err != nil {
		return "", err
	}
	return candidates[idx], nil
}

func interactiveCollect(ctx context.Context, cfg *detective.Config, reader *bufio.Reader) error {
	fmt.Print("Days to collect [30]: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading days: %w", err)
	}
	days := 30
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		days, err = strconv.Atoi(trimmed)
		if err != nil {
			return fmt.Errorf("parsing days: %w", err)
		}
	}
	return runCollect(ctx, cfg, reader, days)
}

func printResult(result *app.RunResult) {
	fmt.Printf("\nRun %s\n", result.Summary.RunID)
	fmt.Printf("  Events analyzed:  %d (%d unparseable)\n", result.Summary.Events, result.Summary.ParseErrors)
	fmt.Printf("  Devices observed: %d (%d excluded as inconsistent)\n", result.Summary.Devices, result.Summary.ExcludedDevices)
	fmt.Printf("  Reports: %s\n", result.RunDir)
	for _, name := range result.Files {
		fmt.Printf("    %s\n", name)
	}
}
