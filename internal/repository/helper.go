package repository

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}
