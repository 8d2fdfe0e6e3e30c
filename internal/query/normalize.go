package query

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Normalize converts a scanned driver value into a JSON- and CSV-friendly
// scalar. dbType is the driver's DatabaseTypeName for the column and may be
// empty.
func Normalize(value any, dbType string) any {
	dbType = strings.ToUpper(dbType)
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeText(v, dbType)
	case string:
		return normalizeString(v, dbType)
	case time.Time:
		return formatTime(v, dbType)
	case float64:
		return finiteOrText(v)
	case float32:
		return finiteOrText(float64(v))
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case *big.Int:
		if v == nil {
			return nil
		}
		if v.IsInt64() {
			return v.Int64()
		}
		return v.String()
	case decimal.Decimal:
		return decimalValue(v)
	case interface{ Float64() float64 }:
		return finiteOrText(v.Float64())
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

func normalizeText(raw []byte, dbType string) any {
	if isBinaryType(dbType) {
		if utf8.Valid(raw) {
			return string(raw)
		}
		return `\x` + hex.EncodeToString(raw)
	}
	if utf8.Valid(raw) {
		return normalizeString(string(raw), dbType)
	}
	return normalizeString(dropInvalidUTF8(raw), dbType)
}

func normalizeString(s string, dbType string) any {
	switch {
	case isDecimalType(dbType):
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return s
		}
		return decimalValue(d)
	case isIntegerType(dbType):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
		return s
	case isFloatType(dbType):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return finiteOrText(f)
		}
		return s
	default:
		return s
	}
}

func decimalValue(d decimal.Decimal) any {
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return d.String()
	}
	return f
}

func finiteOrText(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return f
}

func formatTime(t time.Time, dbType string) string {
	switch dbType {
	case "DATE":
		return t.Format(time.DateOnly)
	case "TIME":
		return t.Format("15:04:05.999999999")
	default:
		return t.Format(time.RFC3339Nano)
	}
}

// dropInvalidUTF8 removes ill-formed byte sequences, keeping the valid text.
func dropInvalidUTF8(raw []byte) string {
	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "")
	}
	return string(out)
}

func isDecimalType(dbType string) bool {
	return strings.HasPrefix(dbType, "DECIMAL") || strings.HasPrefix(dbType, "NUMERIC") || dbType == "NEWDECIMAL"
}

func isIntegerType(dbType string) bool {
	switch strings.TrimPrefix(dbType, "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "INT2", "INT4", "INT8", "YEAR",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "HUGEINT":
		return true
	default:
		return false
	}
}

func isFloatType(dbType string) bool {
	switch dbType {
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8":
		return true
	default:
		return false
	}
}

func isBinaryType(dbType string) bool {
	switch dbType {
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA", "BIT", "GEOMETRY":
		return true
	default:
		return false
	}
}

// FormatCSV renders a normalized scalar as a CSV field. nil renders empty.
func FormatCSV(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
