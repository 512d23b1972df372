// Command analyzer-cli is an interactive session driver for the analysis
// API: start an application, paste or upload transactions, submit, and
// review the decision.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	"github.com/ledaniel0/ml-loan-analyzer/internal/gateway"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/normalize"
	"github.com/ledaniel0/ml-loan-analyzer/internal/registry"
	"github.com/ledaniel0/ml-loan-analyzer/internal/workflow"
)

const submitTimeout = 3 * time.Minute

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	baseURL := strings.TrimSpace(os.Getenv("ANALYZER_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	gw := gateway.NewClient(baseURL, nil)
	store := registry.NewMemory(registry.UUIDGenerator{}, time.Now)
	ctrl := workflow.NewController(gw, store)

	fmt.Printf("loan analyzer, connected to %s\n", baseURL)
	fmt.Println(`type "help" for commands`)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	for {
		fmt.Printf("[%s] > ", ctrl.State())
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "help":
			printHelp()
		case "start":
			report(ctrl.StartApplication())
		case "show":
			printLedger(ctrl.Ledger())
		case "paste":
			handlePaste(ctrl, arg)
		case "submit":
			handleSubmit(ctrl)
		case "upload":
			handleUpload(ctrl, arg)
		case "ack":
			report(ctrl.Acknowledge())
		case "back":
			ctrl.ForceDashboard()
		case "list":
			handleList(gw)
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  start           begin a new application
  paste <json>    replace the ledger with pasted transactions
  show            print the current ledger
  submit          analyze the current ledger
  upload <path>   upload a statement file for extraction and analysis
  ack             acknowledge the result and return to the dashboard
  back            abandon the session and return to the dashboard
  list            show registered applications
  quit            exit
`)
}

func report(err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func handlePaste(ctrl *workflow.Controller, arg string) {
	if arg == "" {
		fmt.Println("usage: paste <json>")
		return
	}
	ledger, err := normalize.ParseRecords([]byte(arg))
	if err != nil {
		fmt.Println("error: transactions payload is malformed")
		return
	}
	if err := ctrl.SetLedger(ledger); err != nil {
		report(err)
		return
	}
	fmt.Printf("ledger replaced, %d row(s)\n", len(ledger))
}

func handleSubmit(ctrl *workflow.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if _, err := ctrl.Submit(ctx); err != nil {
		report(err)
		return
	}
	awaitOutcome(ctrl)
}

func handleUpload(ctrl *workflow.Controller, path string) {
	if path == "" {
		fmt.Println("usage: upload <path>")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if _, err := ctrl.SubmitStatement(ctx, f.Name(), f); err != nil {
		report(err)
		return
	}
	awaitOutcome(ctrl)
}

// awaitOutcome blocks until the in-flight submission resolves, then prints
// either the result or the classified failure.
func awaitOutcome(ctrl *workflow.Controller) {
	fmt.Println("analyzing...")
	deadline := time.Now().Add(submitTimeout + 5*time.Second)
	for time.Now().Before(deadline) {
		snap := ctrl.Snapshot()
		if snap.InFlight {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if ge := ctrl.LastError(); ge != nil {
			fmt.Printf("analysis failed: %s\n", ge.Message)
			return
		}
		if res := ctrl.Result(); res != nil {
			printResult(*res, ctrl.CurrentApplication())
			return
		}
		// Neither result nor error: the session was abandoned elsewhere.
		return
	}
	fmt.Println("timed out waiting for the analysis")
}

func printLedger(ledger core.Ledger) {
	fmt.Printf("%-12s %-28s %10s %10s %10s\n", "DATE", "DESCRIPTION", "CREDIT", "DEBIT", "BALANCE")
	for _, tx := range ledger {
		fmt.Printf("%-12s %-28s %10s %10s %10s\n",
			tx.Date, tx.Description,
			tx.Credit.StringFixed(2), tx.Debit.StringFixed(2), tx.Balance.StringFixed(2))
	}
}

func printResult(res core.AnalysisResult, app *core.Application) {
	fmt.Printf("decision:    %s (%s)\n", res.Decision, res.Source)
	if res.ConfidenceScore > 0 {
		fmt.Printf("confidence:  %.0f%%\n", res.ConfidenceScore*100)
	}
	fmt.Printf("income:      %s\n", res.TotalIncome.StringFixed(2))
	fmt.Printf("expenses:    %s\n", res.TotalExpenses.StringFixed(2))
	fmt.Printf("net flow:    %s\n", res.NetFlow.StringFixed(2))
	if len(res.RecurringExpenses) > 0 {
		fmt.Println("recurring:")
		for _, re := range res.RecurringExpenses {
			fmt.Printf("  %-28s %10s\n", re.Description, re.Total.StringFixed(2))
		}
	}
	if app != nil {
		fmt.Printf("registered:  %s (%s)\n", app.ApplicationNumber, app.ID)
	}
}

func handleList(gw *gateway.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	apps, err := gw.ListApplications(ctx)
	if err != nil {
		if ge, ok := gateway.AsError(err); ok {
			fmt.Printf("error: %s\n", ge.Message)
		} else {
			fmt.Printf("error: %v\n", err)
		}
		return
	}
	if len(apps) == 0 {
		fmt.Println("no applications registered")
		return
	}
	for _, app := range apps {
		fmt.Printf("%-10s %-20s %-8s %s\n",
			app.ApplicationNumber,
			app.Date.Local().Format("2006-01-02 15:04"),
			app.Status,
			app.Analysis.NetFlow.StringFixed(2))
	}
}
