// Command migrate applies the schema files under migrations/ to the
// database named by DATABASE_URL. Files run in lexical order, each inside
// its own transaction, and the run stops at the first failure so a broken
// migration never leaves later ones half-applied.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lib/pq"
)

var schedulerTables = []string{"campaigns", "outboxes", "sending_items"}

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migration files")
	list := flag.Bool("list", false, "list scheduler tables already present, then exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}

	if *list {
		if err := listTables(db); err != nil {
			log.Fatalf("list tables: %v", err)
		}
		return
	}

	applied, err := apply(db, *dir)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Printf("applied %d migration(s) from %s", applied, *dir)
}

// listTables prints which scheduler tables already exist, so an operator can
// tell an empty database from a provisioned one without psql.
func listTables(db *sql.DB) error {
	rows, err := db.Query(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename = ANY($1) ORDER BY tablename`,
		pq.Array(schedulerTables))
	if err != nil {
		return err
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		fmt.Println("  " + name)
		found++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	fmt.Printf("%d of %d scheduler tables present\n", found, len(schedulerTables))
	return nil
}

// apply runs every .sql file under dir in lexical order and returns how many
// it executed. The first failing file aborts the run with its transaction
// rolled back.
func apply(db *sql.DB, dir string) (int, error) {
	names, err := sqlFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("no .sql files in %s", dir)
	}

	applied := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		stmts, err := os.ReadFile(path)
		if err != nil {
			return applied, err
		}
		if strings.TrimSpace(string(stmts)) == "" {
			continue
		}
		if err := runInTx(db, string(stmts)); err != nil {
			return applied, fmt.Errorf("%s: %w", name, err)
		}
		log.Printf("applied %s", name)
		applied++
	}
	return applied, nil
}

func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func runInTx(db *sql.DB, stmts string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(stmts); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
