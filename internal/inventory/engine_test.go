package inventory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	stock int
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = r.stock
	return nil
}

// fakeTx embeds pgx.Tx for interface satisfaction; only the methods the
// engine uses are implemented.
type fakeTx struct {
	pgx.Tx
	stocks      map[string]int
	locked      []string
	decremented []string
	committed   bool
	rolledBack  bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pid := args[0].(string)
	switch {
	case strings.Contains(sql, "INSERT INTO inventory"):
		if _, ok := t.stocks[pid]; !ok {
			t.stocks[pid] = 0
		}
	case strings.Contains(sql, "UPDATE inventory"):
		t.stocks[pid] -= args[1].(int)
		t.decremented = append(t.decremented, pid)
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pid := args[0].(string)
	t.locked = append(t.locked, pid)
	return fakeRow{stock: t.stocks[pid]}
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx     *fakeTx
	stocks map[string]int
	execs  int
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	d.tx = &fakeTx{stocks: d.stocks}
	return d.tx, nil
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pid := args[0].(string)
	stock, ok := d.stocks[pid]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{stock: stock}
}

// fakeRows embeds pgx.Rows for interface satisfaction; only the methods
// All uses are implemented.
type fakeRows struct {
	pgx.Rows
	items []ProductStock
	i     int
}

func (r *fakeRows) Next() bool { r.i++; return r.i <= len(r.items) }

func (r *fakeRows) Scan(dest ...any) error {
	it := r.items[r.i-1]
	*(dest[0].(*string)) = it.ProductID
	*(dest[1].(*int)) = it.Stock
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

func (d *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pids := make([]string, 0, len(d.stocks))
	for pid := range d.stocks {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	items := make([]ProductStock, 0, len(pids))
	for _, pid := range pids {
		items = append(items, ProductStock{ProductID: pid, Stock: d.stocks[pid]})
	}
	return &fakeRows{items: items}, nil
}

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs++
	if strings.Contains(sql, "ON CONFLICT (product_id) DO UPDATE") {
		d.stocks[args[0].(string)] = args[1].(int)
	}
	return pgconn.CommandTag{}, nil
}

func newFakeDB(stocks map[string]int) *fakeDB {
	if stocks == nil {
		stocks = map[string]int{}
	}
	return &fakeDB{stocks: stocks}
}

func TestReserve_Success(t *testing.T) {
	db := newFakeDB(map[string]int{"a": 5, "b": 3})
	e := &Engine{DB: db}

	err := e.Reserve(context.Background(), []Item{{ProductID: "a", Qty: 2}, {ProductID: "b", Qty: 3}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !db.tx.committed {
		t.Fatalf("transaction not committed")
	}
	if db.stocks["a"] != 3 || db.stocks["b"] != 0 {
		t.Fatalf("stocks after reserve = %v", db.stocks)
	}
}

func TestReserve_LocksInAscendingProductOrder(t *testing.T) {
	db := newFakeDB(map[string]int{"a": 5, "b": 5, "c": 5})
	e := &Engine{DB: db}

	// Request order is deliberately descending.
	err := e.Reserve(context.Background(), []Item{
		{ProductID: "c", Qty: 1}, {ProductID: "b", Qty: 1}, {ProductID: "a", Qty: 1},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(db.tx.locked) != len(want) {
		t.Fatalf("locked %v", db.tx.locked)
	}
	for i, pid := range want {
		if db.tx.locked[i] != pid {
			t.Fatalf("lock order = %v, want %v", db.tx.locked, want)
		}
	}
}

func TestReserve_MergesDuplicateItems(t *testing.T) {
	db := newFakeDB(map[string]int{"a": 5})
	e := &Engine{DB: db}

	err := e.Reserve(context.Background(), []Item{{ProductID: "a", Qty: 2}, {ProductID: "a", Qty: 3}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// One lock, one decrement for the combined quantity.
	if len(db.tx.locked) != 1 {
		t.Fatalf("locked = %v, want one lock", db.tx.locked)
	}
	if db.stocks["a"] != 0 {
		t.Fatalf("stock = %d, want 0", db.stocks["a"])
	}

	// The merged quantity is what gets checked against stock.
	db = newFakeDB(map[string]int{"b": 4})
	e = &Engine{DB: db}
	err = e.Reserve(context.Background(), []Item{{ProductID: "b", Qty: 2}, {ProductID: "b", Qty: 3}})
	var shortage *ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("want ShortageError, got %v", err)
	}
	if shortage.Available != 4 || shortage.Required != 5 {
		t.Fatalf("shortage = %+v", shortage.Shortage)
	}
}

func TestReserve_ShortageRollsBackWholeTransaction(t *testing.T) {
	db := newFakeDB(map[string]int{"a": 5, "b": 1})
	e := &Engine{DB: db}

	err := e.Reserve(context.Background(), []Item{{ProductID: "a", Qty: 2}, {ProductID: "b", Qty: 2}})

	var shortage *ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("want ShortageError, got %v", err)
	}
	if shortage.ProductID != "b" || shortage.Available != 1 || shortage.Required != 2 {
		t.Fatalf("shortage = %+v", shortage.Shortage)
	}
	if db.tx.committed {
		t.Fatalf("transaction must not commit on shortage")
	}
	if !db.tx.rolledBack {
		t.Fatalf("transaction must be rolled back")
	}
}

func TestReserve_ReportsFirstShortageInSortedOrder(t *testing.T) {
	db := newFakeDB(map[string]int{"a": 0, "c": 0})
	e := &Engine{DB: db}

	// Both items are short; the request names c first, but a sorts first.
	err := e.Reserve(context.Background(), []Item{{ProductID: "c", Qty: 1}, {ProductID: "a", Qty: 1}})

	var shortage *ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("want ShortageError, got %v", err)
	}
	if shortage.ProductID != "a" {
		t.Fatalf("shortage product = %s, want a", shortage.ProductID)
	}
	// Nothing past the shortage is touched.
	if len(db.tx.decremented) != 0 {
		t.Fatalf("decrements before the shortage product: %v", db.tx.decremented)
	}
}

func TestReserve_UnknownProductMaterializesWithZeroStock(t *testing.T) {
	db := newFakeDB(nil)
	e := &Engine{DB: db}

	err := e.Reserve(context.Background(), []Item{{ProductID: "new", Qty: 1}})

	var shortage *ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("want ShortageError, got %v", err)
	}
	if shortage.Available != 0 || shortage.Required != 1 {
		t.Fatalf("shortage = %+v", shortage.Shortage)
	}
	if got, ok := db.tx.stocks["new"]; !ok || got != 0 {
		t.Fatalf("product row not created with zero stock: %v", db.tx.stocks)
	}
}

func TestReserve_Validation(t *testing.T) {
	e := &Engine{DB: newFakeDB(nil)}

	cases := []struct {
		name  string
		items []Item
	}{
		{"empty", nil},
		{"zero qty", []Item{{ProductID: "a", Qty: 0}}},
		{"negative qty", []Item{{ProductID: "a", Qty: -1}}},
		{"missing product", []Item{{ProductID: "", Qty: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := e.Reserve(context.Background(), tc.items); !errors.Is(err, ErrBadItem) {
				t.Fatalf("want ErrBadItem, got %v", err)
			}
		})
	}
}

func TestCheckAvailability_ListsEveryShortage(t *testing.T) {
	db := newFakeDB(map[string]int{"a": 1, "b": 10})
	e := &Engine{DB: db}

	missing, err := e.CheckAvailability(context.Background(), []Item{
		{ProductID: "a", Qty: 2},
		{ProductID: "b", Qty: 2},
		{ProductID: "ghost", Qty: 1},
	})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing = %+v, want 2 entries", missing)
	}
	if missing[0].ProductID != "a" || missing[0].Available != 1 {
		t.Fatalf("missing[0] = %+v", missing[0])
	}
	if missing[1].ProductID != "ghost" || missing[1].Available != 0 {
		t.Fatalf("missing[1] = %+v", missing[1])
	}
}

func TestCheckAvailability_AllInStock(t *testing.T) {
	db := newFakeDB(map[string]int{"a": 5})
	e := &Engine{DB: db}

	missing, err := e.CheckAvailability(context.Background(), []Item{{ProductID: "a", Qty: 5}})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %+v, want none", missing)
	}
}

func TestAll(t *testing.T) {
	db := newFakeDB(map[string]int{"b": 2, "a": 7})
	e := &Engine{DB: db}

	all, err := e.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %+v", all)
	}
	if all[0].ProductID != "a" || all[0].Stock != 7 || all[1].ProductID != "b" || all[1].Stock != 2 {
		t.Fatalf("all = %+v, want ordered by product id", all)
	}
}

func TestSetStockAndStock(t *testing.T) {
	db := newFakeDB(nil)
	e := &Engine{DB: db}

	if err := e.SetStock(context.Background(), "a", 7); err != nil {
		t.Fatalf("SetStock: %v", err)
	}
	got, err := e.Stock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if got != 7 {
		t.Fatalf("stock = %d, want 7", got)
	}

	if _, err := e.Stock(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := e.SetStock(context.Background(), "", 1); !errors.Is(err, ErrBadItem) {
		t.Fatalf("want ErrBadItem for empty product, got %v", err)
	}
	if err := e.SetStock(context.Background(), "a", -1); !errors.Is(err, ErrBadItem) {
		t.Fatalf("want ErrBadItem for negative stock, got %v", err)
	}
}
