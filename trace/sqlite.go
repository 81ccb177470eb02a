package trace

import (
	"database/sql"
	"fmt"
	"os"

	// Registers the sqlite3 driver with database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/leidenuniv/pagetables/mem/vm"
)

// SQLiteRecorder persists an access stream to a SQLite database so it can
// be replayed later by SQLiteSource, grounded on the teacher's own
// SQLiteTraceWriter (batched inserts, atexit-registered flush, xid-named
// database file when no path is given).
type SQLiteRecorder struct {
	db        *sql.DB
	statement *sql.Stmt

	buffered  []vm.MemAccess
	batchSize int
}

// NewSQLiteRecorder creates (or truncates) a SQLite database at path and
// returns a recorder ready to accept accesses. If path is empty, a unique
// name is generated with xid, mirroring the teacher's trace-file naming.
func NewSQLiteRecorder(path string) *SQLiteRecorder {
	if path == "" {
		path = "pagetables_trace_" + xid.New().String() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		panic(fmt.Errorf("trace: opening %s: %w", path, err))
	}

	r := &SQLiteRecorder{db: db, batchSize: 10000}
	r.mustExecute(`create table access (address integer not null, kind integer not null)`)

	stmt, err := db.Prepare(`insert into access (address, kind) values (?, ?)`)
	if err != nil {
		panic(fmt.Errorf("trace: preparing insert statement: %w", err))
	}
	r.statement = stmt

	atexit.Register(func() { r.Flush() })

	return r
}

// Record buffers access for writing, flushing automatically once
// batchSize accesses have accumulated.
func (r *SQLiteRecorder) Record(access vm.MemAccess) {
	r.buffered = append(r.buffered, access)
	if len(r.buffered) >= r.batchSize {
		r.Flush()
	}
}

// Flush writes every buffered access to the database in one transaction.
func (r *SQLiteRecorder) Flush() {
	if len(r.buffered) == 0 {
		return
	}

	r.mustExecute("BEGIN TRANSACTION")
	for _, access := range r.buffered {
		if _, err := r.statement.Exec(access.Address, int(access.Type)); err != nil {
			panic(fmt.Errorf("trace: inserting access: %w", err))
		}
	}
	r.mustExecute("COMMIT TRANSACTION")

	r.buffered = nil
}

// Close flushes any remaining accesses and closes the database.
func (r *SQLiteRecorder) Close() error {
	r.Flush()
	return r.db.Close()
}

func (r *SQLiteRecorder) mustExecute(query string) {
	if _, err := r.db.Exec(query); err != nil {
		panic(fmt.Errorf("trace: executing %q: %w", query, err))
	}
}

// SQLiteSource replays accesses previously written by an SQLiteRecorder,
// implementing Source.
type SQLiteSource struct {
	db   *sql.DB
	rows *sql.Rows
}

// NewSQLiteSource opens the database at path for replay.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("trace: opening %s: %w", path, err)
	}

	rows, err := db.Query(`select address, kind from access order by rowid`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: querying %s: %w", path, err)
	}

	return &SQLiteSource{db: db, rows: rows}, nil
}

// Next returns the next recorded access, or false once the table is
// exhausted.
func (s *SQLiteSource) Next() (vm.MemAccess, bool) {
	if !s.rows.Next() {
		return vm.MemAccess{}, false
	}

	var address uint64
	var kind int
	if err := s.rows.Scan(&address, &kind); err != nil {
		panic(fmt.Errorf("trace: scanning row: %w", err))
	}

	return vm.MemAccess{Address: address, Type: vm.AccessType(kind)}, true
}

// Close closes the underlying database connection.
func (s *SQLiteSource) Close() error {
	s.rows.Close()
	return s.db.Close()
}

// WarnIfMissing logs (to stderr, in the teacher's plain style) when path
// does not exist, so callers get a friendlier message than a raw sqlite
// "unable to open database file" error.
func WarnIfMissing(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "trace: %s does not exist yet; it will be created\n", path)
	}
}
