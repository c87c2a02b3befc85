// Package frame provides the in-memory table used throughout the pipeline:
// ordered, uniquely named columns over rows of typed cells. Columns are gota
// string series, so every cell keeps the exact text it was read or built
// with and is typed again on access.
package frame

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"prepost/internal/errors"
)

// Frame is an ordered set of named columns over rows of cells
type Frame struct {
	columns []series.Series
	index   map[string]int
	rows    int
}

// New creates an empty frame with the given columns. Column names must be
// non-empty and unique.
func New(columns ...string) (*Frame, error) {
	if err := checkNames(columns); err != nil {
		return nil, err
	}
	f := &Frame{
		columns: make([]series.Series, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for j, name := range columns {
		f.columns[j] = series.New([]string{}, series.String, name)
		f.index[name] = j
	}
	return f, nil
}

// MustNew is New for statically known column lists
func MustNew(columns ...string) *Frame {
	f, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return f
}

func checkNames(columns []string) error {
	seen := make(map[string]struct{}, len(columns))
	for _, name := range columns {
		if strings.TrimSpace(name) == "" {
			return errors.InvalidInput("column name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return errors.Newf(errors.CodeInvalidInput, "duplicate column %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Columns returns a copy of the column names in order
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	for j, s := range f.columns {
		out[j] = s.Name
	}
	return out
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return f.rows
}

// Width returns the number of columns
func (f *Frame) Width() int {
	return len(f.columns)
}

// Has reports whether the column exists
func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// Index returns the position of a column
func (f *Frame) Index(column string) (int, bool) {
	i, ok := f.index[column]
	return i, ok
}

// Require returns an error naming every column that is missing
func (f *Frame) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !f.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.CodeInvalidInput, "missing column(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// Append adds a row. The number of cells must match the number of columns.
func (f *Frame) Append(cells ...Cell) error {
	if len(cells) != len(f.columns) {
		return errors.Newf(errors.CodeInvalidInput, "row has %d cells, frame has %d columns", len(cells), len(f.columns))
	}
	for j, c := range cells {
		f.columns[j].Append(element(c))
	}
	f.rows++
	return nil
}

// AppendRecord adds a row from a column → cell map; absent columns are empty
// and unknown keys are rejected.
func (f *Frame) AppendRecord(record map[string]Cell) error {
	row := make([]Cell, len(f.columns))
	for name, cell := range record {
		i, ok := f.index[name]
		if !ok {
			return errors.Newf(errors.CodeInvalidInput, "unknown column %q", name)
		}
		row[i] = cell
	}
	return f.Append(row...)
}

// At returns the cell at row i, column j
func (f *Frame) At(i, j int) Cell {
	return cell(f.columns[j].Elem(i))
}

// Get returns the cell at row i in the named column, or an empty cell when
// the column does not exist
func (f *Frame) Get(i int, column string) Cell {
	j, ok := f.index[column]
	if !ok {
		return Empty()
	}
	return f.At(i, j)
}

// Row returns a copy of row i
func (f *Frame) Row(i int) []Cell {
	out := make([]Cell, len(f.columns))
	for j := range f.columns {
		out[j] = f.At(i, j)
	}
	return out
}

// Column returns a copy of the named column
func (f *Frame) Column(column string) ([]Cell, error) {
	j, ok := f.index[column]
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "missing column %q", column)
	}
	out := make([]Cell, f.rows)
	for i := range out {
		out[i] = f.At(i, j)
	}
	return out, nil
}

// Floats returns the named column as numbers. Every cell must be numeric.
func (f *Frame) Floats(column string) ([]float64, error) {
	cells, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, ok := c.Float()
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "column %q row %d: %q is not numeric", column, i, c.String())
		}
		out[i] = v
	}
	return out, nil
}

// Strings returns the named column rendered as text
func (f *Frame) Strings(column string) ([]string, error) {
	cells, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out, nil
}

// Distinct returns the distinct non-empty values of a column in order of
// first appearance
func (f *Frame) Distinct(column string) ([]string, error) {
	cells, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, c := range cells {
		if c.IsEmpty() {
			continue
		}
		key := c.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out, nil
}

// Filter returns a new frame holding the rows for which keep returns true
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	idx := make([]int, 0, f.rows)
	for i := 0; i < f.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	out := &Frame{
		columns: make([]series.Series, len(f.columns)),
		index:   f.copyIndex(),
		rows:    len(idx),
	}
	for j, s := range f.columns {
		out.columns[j] = s.Subset(idx)
	}
	return out
}

// Where returns the rows whose cell in column equals value
func (f *Frame) Where(column string, value Cell) (*Frame, error) {
	j, ok := f.index[column]
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "missing column %q", column)
	}
	if value.IsEmpty() {
		return f.Filter(func(i int) bool { return f.At(i, j).IsEmpty() }), nil
	}
	return fromData(f.data().Filter(dataframe.F{
		Colname:    column,
		Comparator: series.Eq,
		Comparando: value.String(),
	}))
}

// Select returns a frame restricted to the given columns, in the given order
func (f *Frame) Select(columns ...string) (*Frame, error) {
	if err := f.Require(columns...); err != nil {
		return nil, err
	}
	if err := checkNames(columns); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return &Frame{index: map[string]int{}, rows: f.rows}, nil
	}
	return fromData(f.data().Select(columns))
}

// Drop returns a frame without the given columns; unknown names are ignored
func (f *Frame) Drop(columns ...string) *Frame {
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	keep := make([]string, 0, len(f.columns))
	for _, s := range f.columns {
		if _, ok := drop[s.Name]; !ok {
			keep = append(keep, s.Name)
		}
	}
	out, _ := f.Select(keep...)
	return out
}

// Rename returns a frame with columns renamed by the mapping
func (f *Frame) Rename(mapping map[string]string) (*Frame, error) {
	names := f.Columns()
	for i, c := range names {
		if to, ok := mapping[c]; ok {
			names[i] = to
		}
	}
	if err := checkNames(names); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return f.Clone(), nil
	}
	df := f.data()
	if err := df.SetNames(names...); err != nil {
		return nil, errors.Wrap(err, "frame: rename")
	}
	return fromData(df)
}

// Set replaces the named column, or appends it when it does not exist
func (f *Frame) Set(column string, cells []Cell) error {
	if len(cells) != f.rows {
		return errors.Newf(errors.CodeInvalidInput, "column %q has %d cells, frame has %d rows", column, len(cells), f.rows)
	}
	s := column2series(column, cells)
	if j, ok := f.index[column]; ok {
		f.columns[j] = s
		return nil
	}
	if strings.TrimSpace(column) == "" {
		return errors.InvalidInput("column name must not be empty")
	}
	f.index[column] = len(f.columns)
	f.columns = append(f.columns, s)
	return nil
}

// Map rewrites every cell of a column in place
func (f *Frame) Map(column string, fn func(Cell) Cell) error {
	cells, err := f.Column(column)
	if err != nil {
		return err
	}
	for i, c := range cells {
		cells[i] = fn(c)
	}
	f.columns[f.index[column]] = column2series(column, cells)
	return nil
}

// Move relocates a column to position pos, shifting the others right
func (f *Frame) Move(column string, pos int) error {
	if _, ok := f.index[column]; !ok {
		return errors.Newf(errors.CodeInvalidInput, "missing column %q", column)
	}
	if pos < 0 || pos >= len(f.columns) {
		return errors.Newf(errors.CodeInvalidInput, "position %d out of range", pos)
	}
	order := make([]string, 0, len(f.columns))
	for _, s := range f.columns {
		if s.Name != column {
			order = append(order, s.Name)
		}
	}
	order = append(order[:pos], append([]string{column}, order[pos:]...)...)
	moved, err := f.Select(order...)
	if err != nil {
		return err
	}
	*f = *moved
	return nil
}

// Clone returns a deep copy
func (f *Frame) Clone() *Frame {
	out := &Frame{
		columns: make([]series.Series, len(f.columns)),
		index:   f.copyIndex(),
		rows:    f.rows,
	}
	for j, s := range f.columns {
		out.columns[j] = s.Copy()
	}
	return out
}

// Records returns each row as a column → cell map
func (f *Frame) Records() []map[string]Cell {
	out := make([]map[string]Cell, f.rows)
	for i := range out {
		rec := make(map[string]Cell, len(f.columns))
		for j, s := range f.columns {
			rec[s.Name] = f.At(i, j)
		}
		out[i] = rec
	}
	return out
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame(%d rows × %d columns: %s)", f.rows, len(f.columns), strings.Join(f.Columns(), ", "))
}

func (f *Frame) copyIndex() map[string]int {
	out := make(map[string]int, len(f.index))
	for k, v := range f.index {
		out[k] = v
	}
	return out
}

// data views the frame as a gota DataFrame; callers make sure it has columns
func (f *Frame) data() dataframe.DataFrame {
	return dataframe.New(f.columns...)
}

func fromData(df dataframe.DataFrame) (*Frame, error) {
	if err := df.Error(); err != nil {
		return nil, errors.Wrap(err, "frame")
	}
	names := df.Names()
	out := &Frame{
		columns: make([]series.Series, len(names)),
		index:   make(map[string]int, len(names)),
		rows:    df.Nrow(),
	}
	for j, name := range names {
		out.columns[j] = df.Col(name)
		out.index[name] = j
	}
	return out, nil
}

// element is the series value of a cell; empty cells are NA
func element(c Cell) interface{} {
	if c.IsEmpty() {
		return nil
	}
	return c.String()
}

// cell types a stored element again. Gota writes NA as "NaN" when it copies
// series into one another, which Parse also reads as empty.
func cell(e series.Element) Cell {
	if e.IsNA() {
		return Empty()
	}
	return Parse(e.String())
}

func column2series(name string, cells []Cell) series.Series {
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = element(c)
	}
	return series.New(values, series.String, name)
}

// Concat stacks frames vertically. The result has the union of all columns in
// order of first appearance; cells a frame does not have are empty. Nil and
// column-less frames contribute nothing.
func Concat(frames ...*Frame) (*Frame, error) {
	var (
		acc  dataframe.DataFrame
		have bool
	)
	for _, f := range frames {
		if f == nil || f.Width() == 0 {
			continue
		}
		if !have {
			acc, have = f.data(), true
			continue
		}
		acc = acc.Concat(f.data())
	}
	if !have {
		return &Frame{index: map[string]int{}}, nil
	}
	return fromData(acc)
}
