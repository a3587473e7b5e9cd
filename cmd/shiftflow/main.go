package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/andreddluiz/shiftflow/internal/events"
	"github.com/andreddluiz/shiftflow/internal/history"
	"github.com/andreddluiz/shiftflow/internal/metrics"
	"github.com/andreddluiz/shiftflow/internal/model"
	"github.com/andreddluiz/shiftflow/internal/notify"
	"github.com/andreddluiz/shiftflow/internal/rules"
	"github.com/andreddluiz/shiftflow/internal/session"
	"github.com/andreddluiz/shiftflow/internal/sessioncache"
	"github.com/andreddluiz/shiftflow/internal/setup"
	"github.com/andreddluiz/shiftflow/internal/store"
	"github.com/andreddluiz/shiftflow/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "session":
		runSession(os.Args[2:])
	case "select":
		runSelect(os.Args[2:])
	case "reopen":
		runReopen(os.Args[2:])
	case "assign":
		runAssign(os.Args[2:])
	case "task":
		runTask(os.Args[2:])
	case "nonroutine":
		runNonRoutine(os.Args[2:])
	case "control":
		runControl(os.Args[2:])
	case "note":
		runNote(os.Args[2:])
	case "finalize":
		runFinalize(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "stop":
		runStop(os.Args[2:])
	case "version":
		fmt.Printf("shiftflow %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`shiftflow - shared shift data entry for ground-handling bases

Usage:
  shiftflow init <dir>                  initialize a workspace
  shiftflow session                     run the session daemon
  shiftflow select <date> <slot>        select the working shift period
  shiftflow reopen <date> <slot>        reopen a finalized shift for editing
  shiftflow assign <slot#> <collab-id>  assign a collaborator ("" clears)
  shiftflow task <task-id> <value>      enter a task value ("" clears)
  shiftflow nonroutine <add|update|remove> [options]
  shiftflow control <family> [options]  edit a control-panel row
  shiftflow note <text>                 replace the shift notes
  shiftflow finalize [--confirm]        validate and commit the shift
  shiftflow status [--json]             show session status
  shiftflow stop                        stop the session daemon
  shiftflow version                     print version
`)
}

func runInit(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow init <dir>")
		os.Exit(1)
	}
	if err := setup.Init(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(args[0])
	fmt.Printf("Initialized .shiftflow/ in %s\n", absDir)
}

func runSession(_ []string) {
	root := mustFindRoot()
	cfg, err := loadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(root, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ruleCfg, err := rules.Load(filepath.Join(root, "rules.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load rules: %v\n", err)
		os.Exit(1)
	}

	sessionDir := filepath.Join(root, setup.SessionDirName)
	storeDir := resolvePath(root, cfg.Store.Dir)
	cfg.Store.Dir = storeDir

	fileStore, err := store.NewFileStore(storeDir, filepath.Join(sessionDir, "quarantine"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}

	histStore, err := history.OpenSQLite(resolvePath(root, cfg.History.Path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open history: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = histStore.Close() }()

	bus := events.NewBus(64)
	defer bus.Close()
	m := metrics.New()

	var notifier notify.Notifier = notify.Silent{}
	if cfg.Notify.Enabled {
		notifier = notify.NewDesktop(logger)
	}

	sess := session.New(session.Deps{
		Config:   cfg,
		Rules:    ruleCfg,
		Store:    fileStore,
		History:  histStore,
		Cache:    sessioncache.NewFileCache(filepath.Join(sessionDir, "selection.yaml")),
		Bus:      bus,
		Metrics:  m,
		Notifier: notifier,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := session.NewDaemon(cfg, sess, sessionDir, m, logger)
	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "session: %v\n", err)
		os.Exit(1)
	}
}

func runSelect(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow select <date> <slot>")
		os.Exit(1)
	}
	send("select", map[string]string{"date": args[0], "shift_slot_id": args[1]}, nil)
	fmt.Printf("Selected %s / %s\n", args[0], args[1])
}

func runReopen(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow reopen <date> <slot>")
		os.Exit(1)
	}
	send("reopen", map[string]string{"date": args[0], "shift_slot_id": args[1]}, nil)
	fmt.Printf("Reopened %s / %s for editing\n", args[0], args[1])
}

func runAssign(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow assign <slot#> [collab-id]")
		os.Exit(1)
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid slot number %q\n", args[0])
		os.Exit(1)
	}
	collaboratorID := ""
	if len(args) > 1 {
		collaboratorID = args[1]
	}
	send("assign", map[string]any{"slot": slot, "collaborator_id": collaboratorID}, nil)
	if collaboratorID == "" {
		fmt.Printf("Cleared slot %d\n", slot)
	} else {
		fmt.Printf("Assigned %s to slot %d\n", collaboratorID, slot)
	}
}

func runTask(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow task <task-id> [value]")
		os.Exit(1)
	}
	value := ""
	if len(args) > 1 {
		value = args[1]
	}
	send("task", map[string]string{"task_id": args[0], "value": value}, nil)
	fmt.Println("OK")
}

func runNonRoutine(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow nonroutine <add|update|remove> [options]")
		os.Exit(1)
	}
	action := args[0]
	rest := args[1:]

	entry := model.NonRoutineEntry{Kind: model.KindDuration}
	index := -1
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--desc":
			i++
			entry.Description = flagValue(rest, i, "--desc")
		case "--category":
			i++
			entry.CategoryID = flagValue(rest, i, "--category")
		case "--kind":
			i++
			entry.Kind = model.MeasurementKind(flagValue(rest, i, "--kind"))
		case "--value":
			i++
			entry.Value = flagValue(rest, i, "--value")
		case "--unit-minutes":
			i++
			v, err := strconv.ParseFloat(flagValue(rest, i, "--unit-minutes"), 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, "--unit-minutes requires a number")
				os.Exit(1)
			}
			entry.UnitMinutes = v
		case "--index":
			i++
			v, err := strconv.Atoi(flagValue(rest, i, "--index"))
			if err != nil {
				fmt.Fprintln(os.Stderr, "--index requires a number")
				os.Exit(1)
			}
			index = v
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", rest[i])
			os.Exit(1)
		}
	}

	if (action == "update" || action == "remove") && index < 0 {
		fmt.Fprintf(os.Stderr, "%s requires --index\n", action)
		os.Exit(1)
	}

	send("nonroutine", map[string]any{"action": action, "index": index, "entry": entry}, nil)
	fmt.Println("OK")
}

func runControl(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow control <shelf_life|storage_location|in_transit|critical_balance> [options]")
		os.Exit(1)
	}

	params := map[string]any{"family": args[0]}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--id":
			i++
			params["id"] = flagValue(rest, i, "--id")
		case "--name":
			i++
			params["name"] = flagValue(rest, i, "--name")
		case "--qty":
			i++
			v, err := strconv.ParseFloat(flagValue(rest, i, "--qty"), 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, "--qty requires a number")
				os.Exit(1)
			}
			params["quantity"] = v
		case "--expires":
			i++
			params["expires_at"] = flagValue(rest, i, "--expires")
		case "--lot":
			i++
			params["lot_number"] = flagValue(rest, i, "--lot")
		case "--location":
			i++
			params["location"] = flagValue(rest, i, "--location")
		case "--origin":
			i++
			params["origin"] = flagValue(rest, i, "--origin")
		case "--dest":
			i++
			params["destination"] = flagValue(rest, i, "--dest")
		case "--part":
			i++
			params["part_number"] = flagValue(rest, i, "--part")
		case "--remove":
			params["remove"] = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", rest[i])
			os.Exit(1)
		}
	}

	var data struct {
		Alert *struct {
			Level   string `json:"level"`
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"alert"`
	}
	send("control", params, &data)
	if data.Alert != nil {
		fmt.Printf("[%s] %s: %s\n", data.Alert.Level, data.Alert.Title, data.Alert.Message)
	} else {
		fmt.Println("OK")
	}
}

func runNote(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: shiftflow note <text>")
		os.Exit(1)
	}
	send("note", map[string]string{"text": strings.Join(args, " ")}, nil)
	fmt.Println("OK")
}

func runFinalize(args []string) {
	confirm := false
	for _, a := range args {
		switch a {
		case "--confirm":
			confirm = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: shiftflow finalize [--confirm]\n", a)
			os.Exit(1)
		}
	}

	var result struct {
		RecordID       string  `json:"record_id"`
		AvailableHours float64 `json:"available_hours"`
		ProducedHours  float64 `json:"produced_hours"`
		Performance    float64 `json:"performance"`
	}
	send("finalize", map[string]bool{"confirm": confirm}, &result)
	fmt.Printf("Shift finalized (record %s)\n", result.RecordID)
	fmt.Printf("  available: %.2fh  produced: %.2fh  performance: %.1f%%\n",
		result.AvailableHours, result.ProducedHours, result.Performance)
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: shiftflow status [--json]\n", a)
			os.Exit(1)
		}
	}

	if jsonOutput {
		var pretty map[string]any
		send("status", struct{}{}, &pretty)
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return
	}

	var report session.Report
	send("status", struct{}{}, &report)
	printReport(report)
}

func printReport(r session.Report) {
	fmt.Printf("Base:      %s (operator %s)\n", r.BaseID, r.OperatorID)
	if r.Date == "" {
		fmt.Println("Period:    none selected")
		return
	}
	fmt.Printf("Period:    %s / %s", r.Date, r.ShiftSlotID)
	if r.Reopened {
		fmt.Print("  (reopened)")
	}
	fmt.Println()
	fmt.Printf("Status:    %s  save: %s\n", r.Status, r.SaveState)
	fmt.Printf("Team:      %d/%d slots filled\n", countFilled(r.TeamSlots), len(r.TeamSlots))
	fmt.Printf("Entries:   %d tasks, %d non-routine rows\n", r.TaskCount, r.NonRoutineCount)
	fmt.Printf("Hours:     available %.2f  produced %.2f  performance %.1f%%\n",
		r.AvailableHours, r.ProducedHours, r.Performance)
	if len(r.ControlLevels) > 0 {
		fmt.Printf("Controls:  green %d  yellow %d  red %d\n",
			r.ControlLevels["green"], r.ControlLevels["yellow"], r.ControlLevels["red"])
	}
	if r.Notes != "" {
		fmt.Printf("Notes:     %s\n", r.Notes)
	}
}

func countFilled(slots []string) int {
	n := 0
	for _, s := range slots {
		if s != "" {
			n++
		}
	}
	return n
}

func runStop(_ []string) {
	send("shutdown", struct{}{}, nil)
	fmt.Println("Session stopping")
}

// send performs one request against the session socket, decoding the success
// payload into out (nil when unused) and exiting with the error printed when
// the daemon rejects it.
func send(command string, params, out any) {
	root := mustFindRoot()
	client := uds.NewClient(filepath.Join(root, setup.SessionDirName, uds.DefaultSocketName))

	err := client.Call(command, params, out)
	if err == nil {
		return
	}
	var cmdErr *uds.CommandError
	if errors.As(err, &cmdErr) {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", cmdErr.Code, cmdErr.Message)
		if len(cmdErr.Details) > 0 {
			var pretty any
			if err := json.Unmarshal(cmdErr.Details, &pretty); err == nil {
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Fprintln(os.Stderr, string(out))
			}
		}
	} else {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(1)
}

func flagValue(args []string, i int, name string) string {
	if i >= len(args) {
		fmt.Fprintf(os.Stderr, "%s requires a value\n", name)
		os.Exit(1)
	}
	return args[i]
}

func mustFindRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "getwd: %v\n", err)
		os.Exit(1)
	}
	root := setup.FindRoot(cwd)
	if root == "" {
		fmt.Fprintln(os.Stderr, "error: .shiftflow/ directory not found. Run 'shiftflow init <dir>' first.")
		os.Exit(1)
	}
	return root
}

func loadConfig(root string) (model.Config, error) {
	var cfg model.Config
	data, err := os.ReadFile(filepath.Join(root, "config.yaml"))
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config.yaml: %w", err)
	}
	if cfg.Station.BaseID == "" {
		return cfg, fmt.Errorf("config.yaml: station.base_id is required")
	}
	if cfg.Store.Dir == "" {
		return cfg, fmt.Errorf("config.yaml: store.dir is required")
	}
	return cfg, nil
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func buildLogger(root, level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zapCfg.Level = lvl
	}
	zapCfg.OutputPaths = []string{
		filepath.Join(root, setup.SessionDirName, "logs", "session.log"),
		"stderr",
	}
	return zapCfg.Build()
}
