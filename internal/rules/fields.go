package rules

// FieldType describes the declared type of a context attribute.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldDate   FieldType = "date"
)

// FieldCatalog is the fixed set of attributes a condition leaf may reference.
// Conditions referencing fields outside this catalog are rejected at load time.
var FieldCatalog = map[string]FieldType{
	"category":            FieldString,
	"subcategory":         FieldString,
	"measurementUnit":     FieldString,
	"customerTier":        FieldString,
	"currency":            FieldString,
	"customerCompanyId":   FieldString,
	"baseCost":            FieldNumber,
	"quantityTier":        FieldNumber,
	"currentUnitPrice":    FieldNumber,
	"currentSpecialPrice": FieldNumber,
	"currentHourlyRate":   FieldNumber,
	"currentTravelCost":   FieldNumber,
	"automaticMargin":     FieldNumber,
	"hasSurcharge":        FieldBool,
	"isActive":            FieldBool,
	"introducedAt":        FieldDate,
}

// operatorsByType maps each field type to the operators valid for it.
var operatorsByType = map[FieldType][]Operator{
	FieldString: {OpEq, OpNeq, OpIn},
	FieldNumber: {OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpBetween},
	FieldBool:   {OpEq, OpNeq},
	FieldDate:   {OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpBetween},
}

// OperatorsFor returns the operators valid for a field type.
func OperatorsFor(ft FieldType) []Operator {
	ops := operatorsByType[ft]
	out := make([]Operator, len(ops))
	copy(out, ops)
	return out
}

// OperatorValidFor reports whether op is allowed on a field of type ft.
func OperatorValidFor(ft FieldType, op Operator) bool {
	for _, valid := range operatorsByType[ft] {
		if op == valid {
			return true
		}
	}
	return false
}
