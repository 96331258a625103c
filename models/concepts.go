package models

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type ActivityGroupValue struct {
	Name             string `json:"name" binding:"required"`
	NameSentenceCase string `json:"name_sentence_case"`
	Definition       string `json:"definition"`
	Abbreviation     string `json:"abbreviation"`
}

func (v ActivityGroupValue) Equal(o ActivityGroupValue) bool {
	return v == o
}

type ActivitySubGroupValue struct {
	Name              string   `json:"name" binding:"required"`
	NameSentenceCase  string   `json:"name_sentence_case"`
	Definition        string   `json:"definition"`
	Abbreviation      string   `json:"abbreviation"`
	ActivityGroupUIDs []string `json:"activity_group_uids"`
}

func (v ActivitySubGroupValue) Equal(o ActivitySubGroupValue) bool {
	return v.Name == o.Name &&
		v.NameSentenceCase == o.NameSentenceCase &&
		v.Definition == o.Definition &&
		v.Abbreviation == o.Abbreviation &&
		equalStrings(v.ActivityGroupUIDs, o.ActivityGroupUIDs)
}

type ActivityValue struct {
	Name                 string   `json:"name" binding:"required"`
	NameSentenceCase     string   `json:"name_sentence_case"`
	Definition           string   `json:"definition"`
	Abbreviation         string   `json:"abbreviation"`
	ActivitySubGroupUIDs []string `json:"activity_subgroup_uids"`
}

func (v ActivityValue) Equal(o ActivityValue) bool {
	return v.Name == o.Name &&
		v.NameSentenceCase == o.NameSentenceCase &&
		v.Definition == o.Definition &&
		v.Abbreviation == o.Abbreviation &&
		equalStrings(v.ActivitySubGroupUIDs, o.ActivitySubGroupUIDs)
}

type CompoundValue struct {
	Name              string   `json:"name" binding:"required"`
	Definition        string   `json:"definition"`
	Abbreviation      string   `json:"abbreviation"`
	IsSponsorCompound bool     `json:"is_sponsor_compound"`
	SubstanceUIDs     []string `json:"substance_uids"`
	DoseUnitUIDs      []string `json:"dose_unit_uids"`
}

func (v CompoundValue) Equal(o CompoundValue) bool {
	return v.Name == o.Name &&
		v.Definition == o.Definition &&
		v.Abbreviation == o.Abbreviation &&
		v.IsSponsorCompound == o.IsSponsorCompound &&
		equalStrings(v.SubstanceUIDs, o.SubstanceUIDs) &&
		equalStrings(v.DoseUnitUIDs, o.DoseUnitUIDs)
}

type UnitDefinitionValue struct {
	Name                     string   `json:"name" binding:"required"`
	Definition               string   `json:"definition"`
	ConvertibleUnit          bool     `json:"convertible_unit"`
	DisplayUnit              bool     `json:"display_unit"`
	MasterUnit               bool     `json:"master_unit"`
	SIUnit                   bool     `json:"si_unit"`
	USConventionalUnit       bool     `json:"us_conventional_unit"`
	ConversionFactorToMaster *float64 `json:"conversion_factor_to_master"`
	UnitDimensionUID         string   `json:"unit_dimension_uid"`
}

func (v UnitDefinitionValue) Equal(o UnitDefinitionValue) bool {
	return v.Name == o.Name &&
		v.Definition == o.Definition &&
		v.ConvertibleUnit == o.ConvertibleUnit &&
		v.DisplayUnit == o.DisplayUnit &&
		v.MasterUnit == o.MasterUnit &&
		v.SIUnit == o.SIUnit &&
		v.USConventionalUnit == o.USConventionalUnit &&
		equalFloat(v.ConversionFactorToMaster, o.ConversionFactorToMaster) &&
		v.UnitDimensionUID == o.UnitDimensionUID
}

type CTCodelistValue struct {
	Name            string   `json:"name" binding:"required"`
	SubmissionValue string   `json:"submission_value" binding:"required"`
	Definition      string   `json:"definition"`
	Extensible      bool     `json:"extensible"`
	TermUIDs        []string `json:"term_uids"`
}

func (v CTCodelistValue) Equal(o CTCodelistValue) bool {
	return v.Name == o.Name &&
		v.SubmissionValue == o.SubmissionValue &&
		v.Definition == o.Definition &&
		v.Extensible == o.Extensible &&
		equalStrings(v.TermUIDs, o.TermUIDs)
}

type CTTermValue struct {
	CodeSubmissionValue string   `json:"code_submission_value" binding:"required"`
	NameSubmissionValue string   `json:"name_submission_value"`
	PreferredTerm       string   `json:"preferred_term"`
	Definition          string   `json:"definition"`
	CodelistUIDs        []string `json:"codelist_uids"`
}

func (v CTTermValue) Equal(o CTTermValue) bool {
	return v.CodeSubmissionValue == o.CodeSubmissionValue &&
		v.NameSubmissionValue == o.NameSubmissionValue &&
		v.PreferredTerm == o.PreferredTerm &&
		v.Definition == o.Definition &&
		equalStrings(v.CodelistUIDs, o.CodelistUIDs)
}
