package state

import (
	"database/sql"
	"fmt"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/engine"
	"github.com/kessler-labs/agora/internal/ledger"
)

// Snapshot replaces the stored state with the current in-memory state of
// the ledger, directory, and engine. The write is a single transaction so
// a crash mid-save leaves the previous snapshot intact.
func (db *DB) Snapshot(book *ledger.Book, dir *agentdir.Directory, eng *engine.Engine) error {
	tasks := eng.Tasks()
	disputes := eng.Disputes()

	return db.Transaction(func(tx *sql.Tx) error {
		// Children before parents so the foreign keys hold mid-transaction.
		for _, table := range []string{"dispute_votes", "disputes", "claims", "escrows", "tasks", "agents", "balances"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for _, a := range dir.All() {
			if _, err := tx.Exec(insertAgentSQL, agentArgs(a)...); err != nil {
				return fmt.Errorf("snapshot agent %s: %w", a.ID, err)
			}
		}

		for i := range tasks {
			t := &tasks[i]
			if _, err := tx.Exec(insertTaskSQL, taskArgs(t)...); err != nil {
				return fmt.Errorf("snapshot task %s: %w", t.ID, err)
			}
			escrow, err := eng.Escrow(t.ID)
			if err != nil {
				return fmt.Errorf("snapshot escrow %s: %w", t.ID, err)
			}
			if _, err := tx.Exec(insertEscrowSQL, escrowArgs(&escrow)...); err != nil {
				return fmt.Errorf("snapshot escrow %s: %w", t.ID, err)
			}
			claims := eng.Claims(t.ID)
			for j := range claims {
				if _, err := tx.Exec(insertClaimSQL, claimArgs(&claims[j])...); err != nil {
					return fmt.Errorf("snapshot claim %s/%s: %w", t.ID, claims[j].Worker, err)
				}
			}
		}

		for i := range disputes {
			d := &disputes[i]
			if _, err := tx.Exec(insertDisputeSQL, disputeArgs(d)...); err != nil {
				return fmt.Errorf("snapshot dispute %s: %w", d.ID, err)
			}
			votes := eng.Votes(d.ID)
			for j := range votes {
				if _, err := tx.Exec(insertVoteSQL, voteArgs(&votes[j])...); err != nil {
					return fmt.Errorf("snapshot vote %s/%s: %w", d.ID, votes[j].Voter, err)
				}
			}
		}

		for _, account := range book.Accounts() {
			if _, err := tx.Exec(insertBalanceSQL, account, int64(book.Balance(account))); err != nil {
				return fmt.Errorf("snapshot balance %s: %w", account, err)
			}
		}
		return nil
	})
}

// Load rebuilds the ledger, directory, and engine from the stored snapshot.
// The targets are expected to be empty.
func (db *DB) Load(book *ledger.Book, dir *agentdir.Directory, eng *engine.Engine) error {
	balances, err := db.ListBalances()
	if err != nil {
		return err
	}
	for account, balance := range balances {
		if err := book.SetBalance(account, balance); err != nil {
			return fmt.Errorf("restore balance %s: %w", account, err)
		}
	}

	agents, err := db.ListAgents()
	if err != nil {
		return err
	}
	for _, a := range agents {
		dir.Restore(a)
	}

	tasks, err := db.ListTasks()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		escrow, err := db.GetEscrow(t.ID)
		if err != nil {
			return err
		}
		if escrow == nil {
			return fmt.Errorf("task %s has no escrow record", t.ID)
		}
		eng.RestoreTask(t, escrow)

		claims, err := db.ListClaims(t.ID)
		if err != nil {
			return err
		}
		for _, c := range claims {
			eng.RestoreClaim(c)
		}
	}

	disputes, err := db.ListDisputes()
	if err != nil {
		return err
	}
	for _, d := range disputes {
		ballots, err := db.ListVotes(d.ID)
		if err != nil {
			return err
		}
		eng.RestoreDispute(d, ballots)
	}
	return nil
}
