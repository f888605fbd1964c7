package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ledger-audit replays the full event log and verifies two invariants:
// conservation (every unit's chain of custody is unbroken from PRODUCED
// to its terminal state) and projection consistency (virtual_codes rows
// match the replayed state). Exits non-zero when any unit fails.

type auditEvent struct {
	Seq           int64   `db:"seq"`
	Action        string  `db:"action"`
	VirtualCodeID string  `db:"virtual_code_id"`
	FromOwnerID   *string `db:"from_owner_id"`
	ToOwnerID     *string `db:"to_owner_id"`
}

type codeRow struct {
	ID             string `db:"id"`
	Code           string `db:"code"`
	CurrentOwnerID string `db:"current_owner_id"`
	CurrentStatus  string `db:"current_status"`
}

type unitState struct {
	owner    string
	status   string
	produced bool
}

type finding struct {
	code    string
	seq     int64
	problem string
}

func main() {
	var (
		dsn     string
		verbose bool
	)
	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.BoolVar(&verbose, "verbose", false, "Print every audited unit")
	flag.Parse()

	if dsn == "" {
		log.Fatal("no connection string: set -dsn or DATABASE_URL")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close() //nolint:errcheck

	codes, err := loadCodes(db)
	if err != nil {
		log.Fatalf("failed to load codes: %v", err)
	}

	events, err := loadEvents(db)
	if err != nil {
		log.Fatalf("failed to load events: %v", err)
	}

	findings := audit(codes, events, verbose)
	printReport(findings, len(codes), len(events))
	if len(findings) > 0 {
		os.Exit(1)
	}
}

func loadCodes(db *sqlx.DB) (map[string]codeRow, error) {
	var rows []codeRow
	if err := db.Select(&rows, `SELECT id, code, current_owner_id, current_status FROM virtual_codes`); err != nil {
		return nil, err
	}
	codes := make(map[string]codeRow, len(rows))
	for _, row := range rows {
		codes[row.ID] = row
	}
	return codes, nil
}

func loadEvents(db *sqlx.DB) ([]auditEvent, error) {
	var events []auditEvent
	err := db.Select(&events, `SELECT seq, action, virtual_code_id, from_owner_id, to_owner_id
        FROM transfer_events ORDER BY virtual_code_id, seq ASC`)
	return events, err
}

// audit replays each unit's chain. SHIPPED/RECEIVED and
// RETURN_SENT/RETURN_RECEIVED are written as pairs carrying the same
// endpoints; each pair counts as one custody hop, so the first half is
// verified against the current owner and the second half applies the move.
func audit(codes map[string]codeRow, events []auditEvent, verbose bool) []finding {
	var findings []finding
	states := make(map[string]*unitState)

	for _, ev := range events {
		state, ok := states[ev.VirtualCodeID]
		if !ok {
			state = &unitState{}
			states[ev.VirtualCodeID] = state
		}
		if problem := apply(state, ev); problem != "" {
			findings = append(findings, finding{code: label(codes, ev.VirtualCodeID), seq: ev.Seq, problem: problem})
		}
	}

	for id, row := range codes {
		state, ok := states[id]
		if !ok || !state.produced {
			findings = append(findings, finding{code: row.Code, problem: "no PRODUCED event"})
			continue
		}
		if state.owner != row.CurrentOwnerID || state.status != row.CurrentStatus {
			findings = append(findings, finding{
				code: row.Code,
				problem: fmt.Sprintf("projection drift: replay ends at %s/%s, row says %s/%s",
					state.owner, state.status, row.CurrentOwnerID, row.CurrentStatus),
			})
		} else if verbose {
			fmt.Printf("[OK] %s %s/%s\n", row.Code, state.owner, state.status)
		}
	}

	for id := range states {
		if _, ok := codes[id]; !ok {
			findings = append(findings, finding{code: id, problem: "events reference unknown code"})
		}
	}

	return findings
}

func apply(state *unitState, ev auditEvent) string {
	switch ev.Action {
	case "PRODUCED":
		if state.produced {
			return "duplicate PRODUCED event"
		}
		if ev.ToOwnerID == nil {
			return "PRODUCED without owner"
		}
		state.produced = true
		state.owner = *ev.ToOwnerID
		state.status = "IN_STOCK"
		return ""
	}

	if !state.produced {
		return fmt.Sprintf("%s before PRODUCED", ev.Action)
	}
	// Pairs carry identical endpoints and custody moves on the closing
	// half, so the from side always names the current holder.
	if ev.FromOwnerID == nil || *ev.FromOwnerID != state.owner {
		return fmt.Sprintf("%s breaks chain: from %s, unit held by %s", ev.Action, deref(ev.FromOwnerID), state.owner)
	}

	switch ev.Action {
	case "SHIPPED", "RETURN_SENT":
		// First half of a pair: custody moves when the matching second
		// half lands.
		return ""
	case "RECEIVED", "RETURN_RECEIVED", "RECALLED":
		if ev.ToOwnerID == nil {
			return ev.Action + " without destination"
		}
		state.owner = *ev.ToOwnerID
		state.status = "IN_STOCK"
	case "TREATED":
		if ev.ToOwnerID == nil {
			return "TREATED without patient reference"
		}
		state.owner = *ev.ToOwnerID
		state.status = "USED"
	case "DISPOSED":
		state.status = "DISPOSED"
	default:
		return "unknown action " + ev.Action
	}
	return ""
}

func label(codes map[string]codeRow, id string) string {
	if row, ok := codes[id]; ok {
		return row.Code
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func printReport(findings []finding, codeCount, eventCount int) {
	fmt.Println("Ledger Audit Report")
	fmt.Println("===================")
	fmt.Printf("Units: %d, Events: %d\n", codeCount, eventCount)
	for _, f := range findings {
		if f.seq > 0 {
			fmt.Printf("[FAIL] %s (seq %d): %s\n", f.code, f.seq, f.problem)
		} else {
			fmt.Printf("[FAIL] %s: %s\n", f.code, f.problem)
		}
	}
	fmt.Printf("Findings: %d\n", len(findings))
}
