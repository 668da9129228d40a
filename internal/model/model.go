package model

import "time"

type Sector string

const (
	SectorLife    Sector = "life"
	SectorNonLife Sector = "nonlife"
)

// PartDiv returns the FISIS partition code for the sector.
func (s Sector) PartDiv() string {
	switch s {
	case SectorLife:
		return "H"
	case SectorNonLife:
		return "I"
	default:
		return string(s)
	}
}

func SectorFromPartDiv(partDiv string) Sector {
	if partDiv == "H" {
		return SectorLife
	}
	return SectorNonLife
}

// Company is one insurer from the catalog. Built once per collection run;
// never persisted on its own.
type Company struct {
	Code   string
	Name   string
	Sector Sector
}

// Account is one account item within a list-number grouping.
type Account struct {
	Code   string
	Name   string
	ListNo string
}

// StatRow is the cached/fetched fact: one statistic value for one
// (company, account) pair in one reporting period.
//
// Raw carries the wire value as extracted from the response and is not
// persisted; Value is filled by numeric normalization and stays nil when
// the raw value does not parse. CollectedAt is assigned by the store at
// write time.
type StatRow struct {
	Sector      Sector
	CompanyCode string
	CompanyName string
	AccountCode string
	AccountName string
	Period      string
	Unit        string
	Raw         string
	Value       *float64
	CollectedAt time.Time
}

// YieldPoint is one day of the auxiliary bond-yield series.
type YieldPoint struct {
	Date string
	Rate float64
}
