package dashboard

import (
	"reflect"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/persistence"
	"github.com/shopspring/decimal"
)

// Table is a source table of the dashboard. SumField names the numeric
// field totalled for it; tables without one are only counted.
type Table struct {
	Name     string
	SumField string
}

var DefaultTables = []Table{
	{Name: "users"},
	{Name: "collections", SumField: "weightKg"},
	{Name: "payments", SumField: "amount"},
	{Name: "beneficiaries"},
}

type Summary struct {
	Counts      map[string]int64           `json:"counts"`
	Totals      map[string]decimal.Decimal `json:"totals"`
	Recent      []persistence.Record       `json:"recent"`
	RefreshedAt time.Time                  `json:"refreshedAt"`
}

// Equal reports whether both summaries show the same data. RefreshedAt is
// ignored.
func (s Summary) Equal(other Summary) bool {
	if len(s.Counts) != len(other.Counts) || len(s.Totals) != len(other.Totals) || len(s.Recent) != len(other.Recent) {
		return false
	}

	for table, count := range s.Counts {
		if otherCount, ok := other.Counts[table]; !ok || otherCount != count {
			return false
		}
	}

	for table, total := range s.Totals {
		if otherTotal, ok := other.Totals[table]; !ok || !otherTotal.Equal(total) {
			return false
		}
	}

	for i, record := range s.Recent {
		otherRecord := other.Recent[i]
		if record.ID != otherRecord.ID || record.Table != otherRecord.Table || !record.CreatedAt.Equal(otherRecord.CreatedAt) {
			return false
		}

		if !reflect.DeepEqual(record.Fields, otherRecord.Fields) {
			return false
		}
	}

	return true
}
