package core

import (
	"reflect"
	"testing"
	"time"
)

func TestWhereBuilder_Empty(t *testing.T) {
	wb := NewWhereBuilder()
	if wb.NextArgIndex() != 1 {
		t.Errorf("NextArgIndex = %d, want 1", wb.NextArgIndex())
	}
	clause, args := wb.Build()
	if clause != "" || args != nil {
		t.Errorf("Build() = %q, %v; want empty", clause, args)
	}
}

func TestWhereBuilder_Add(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("collection", "products")
	wb.Add("action", "")
	wb.Add("severity", "high")

	clause, args := wb.Build()
	if want := " WHERE collection = $1 AND severity = $2"; clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if !reflect.DeepEqual(args, []interface{}{"products", "high"}) {
		t.Errorf("args = %v", args)
	}
	if wb.NextArgIndex() != 3 {
		t.Errorf("NextArgIndex = %d, want 3", wb.NextArgIndex())
	}
}

func TestWhereBuilder_AddTimestampRange(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		from, to   any
		wantClause string
		wantArgs   int
	}{
		{"both bounds", from, to, " WHERE created_at >= $1 AND created_at <= $2", 2},
		{"only from", from, time.Time{}, " WHERE created_at >= $1", 1},
		{"only to", nil, to, " WHERE created_at <= $1", 1},
		{"blank strings", "", "", "", 0},
		{"zero times", time.Time{}, time.Time{}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder()
			wb.AddTimestampRange("created_at", tt.from, tt.to)
			clause, args := wb.Build()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestWhereBuilder_AddSearch(t *testing.T) {
	specs := []FieldSpec{
		{Name: "name", Type: FieldText},
		{Name: "country", Type: FieldText},
		{Name: "launchDate", DBColumn: "launch_date", Type: FieldDate},
		{Name: "groupId", DBColumn: "group_id", Type: FieldRef},
		{Name: "price", Type: FieldPrice},
	}

	wb := NewWhereBuilder()
	wb.Add("status", "active")
	wb.AddSearch("basic", specs)

	clause, args := wb.Build()
	want := ` WHERE status = $1 AND ("name" ILIKE $2 OR "country" ILIKE $2)`
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 2 || args[1] != "%basic%" {
		t.Errorf("args = %v", args)
	}

	wb = NewWhereBuilder()
	wb.AddSearch("basic", []FieldSpec{{Name: "price", Type: FieldPrice}})
	if clause, _ := wb.Build(); clause != "" {
		t.Errorf("search without text columns produced %q", clause)
	}

	wb = NewWhereBuilder()
	wb.AddSearch("", specs)
	if clause, _ := wb.Build(); clause != "" {
		t.Errorf("empty search produced %q", clause)
	}
}

func TestWhereBuilder_AddFilters(t *testing.T) {
	tests := []struct {
		name       string
		filter     ColumnFilter
		wantClause string
		wantArgs   []interface{}
	}{
		{"equals", ColumnFilter{DBColumn: "status", Operator: OpEquals, Value: "active"},
			` WHERE "status" = $1`, []interface{}{"active"}},
		{"contains", ColumnFilter{DBColumn: "name", Operator: OpContains, Value: "pro"},
			` WHERE "name" ILIKE $1`, []interface{}{"%pro%"}},
		{"starts with", ColumnFilter{DBColumn: "email", Operator: OpStartsWith, Value: "ops"},
			` WHERE "email" ILIKE $1`, []interface{}{"ops%"}},
		{"ends with", ColumnFilter{DBColumn: "email", Operator: OpEndsWith, Value: "@acme.io"},
			` WHERE "email" ILIKE $1`, []interface{}{"%@acme.io"}},
		{"greater or equal", ColumnFilter{DBColumn: "price", Operator: OpGreaterEq, Value: "10"},
			` WHERE "price" >= $1`, []interface{}{"10"}},
		{"less than", ColumnFilter{DBColumn: "price", Operator: OpLess, Value: "99.5"},
			` WHERE "price" < $1`, []interface{}{"99.5"}},
		{"in list", ColumnFilter{DBColumn: "kind", Operator: OpIn, Value: "product, service"},
			` WHERE "kind" IN ($1, $2)`, []interface{}{"product", "service"}},
		{"unknown operator ignored", ColumnFilter{DBColumn: "kind", Operator: "regex", Value: "x"},
			"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder()
			wb.AddFilters(FilterSet{Filters: []ColumnFilter{tt.filter}})
			clause, args := wb.Build()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestWhereBuilder_FiltersAfterSearchNumberArgs(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddSearch("eu", []FieldSpec{{Name: "name", Type: FieldText}})
	wb.AddFilters(FilterSet{Filters: []ColumnFilter{
		{DBColumn: "status", Operator: OpEquals, Value: "active"},
		{DBColumn: "currency", Operator: OpEquals, Value: "EUR"},
	}})

	clause, args := wb.Build()
	want := ` WHERE ("name" ILIKE $1) AND "status" = $2 AND "currency" = $3`
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 3 || wb.NextArgIndex() != 4 {
		t.Errorf("args = %v, next = %d", args, wb.NextArgIndex())
	}
}

func TestResolveDBColumn(t *testing.T) {
	specs := []FieldSpec{
		{Name: "launchDate", DBColumn: "launch_date"},
		{Name: "name"},
	}
	tests := map[string]string{
		"launchDate":  "launch_date",
		"LAUNCHDATE":  "launch_date",
		"name":        "name",
		"Valid From":  "valid_from",
		"group_id":    "group_id",
	}
	for in, want := range tests {
		if got := resolveDBColumn(in, specs); got != want {
			t.Errorf("resolveDBColumn(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := map[string]string{
		"products":       `"products"`,
		`bad"name`:       `"bad""name"`,
		"x; DROP TABLE":  `"x; DROP TABLE"`,
	}
	for in, want := range tests {
		if got := quoteIdentifier(in); got != want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
	if got := quoteColumns([]string{"id", "name"}); !reflect.DeepEqual(got, []string{`"id"`, `"name"`}) {
		t.Errorf("quoteColumns = %v", got)
	}
}
