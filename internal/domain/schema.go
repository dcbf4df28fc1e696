// Package domain contains pure, dependency-free domain models and types
// for the bank-marketing feature pipeline.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Names of the features derived by feature engineering. Raw inputs never
// carry these; they are computed per row from the source fields below.
const (
	FeatureEngagementScore  = "engagement_score"
	FeatureAgeGroup         = "age_group"
	FeatureEmpVarCategory   = "emp_var_category"
	FeatureDurationCategory = "duration_category"
)

// Raw source fields read by the derived features.
const (
	FieldAge        = "age"
	FieldDuration   = "duration"
	FieldCampaign   = "campaign"
	FieldPdays      = "pdays"
	FieldPrevious   = "previous"
	FieldEmpVarRate = "emp.var.rate"
)

// DefaultSchemaVersion is the version of DefaultFeatureSchema.
const DefaultSchemaVersion = "1.0.0"

// FeatureSchema is the ordered, named contract of features that the
// preprocessing step expects. The order of Numeric and Categorical fixes the
// column order of every feature matrix built from it.
type FeatureSchema struct {
	// Version identifies the schema revision.
	Version string `yaml:"version" json:"version" validate:"required,semver"`

	// Numeric lists numeric features in output order, derived ones included.
	Numeric []string `yaml:"numeric" json:"numeric" validate:"required,min=1,unique,dive,featurename"`

	// Categorical lists categorical features in output order, derived ones included.
	Categorical []string `yaml:"categorical" json:"categorical" validate:"unique,dive,featurename"`

	// Target is the optional label column. It is never a feature.
	Target string `yaml:"target,omitempty" json:"target,omitempty" validate:"omitempty,featurename"`

	// FoldCategories applies Unicode case folding and whitespace trimming to
	// categorical values before encoding.
	FoldCategories bool `yaml:"fold_categories" json:"fold_categories"`
}

// DefaultFeatureSchema returns the schema the bank-marketing model is trained on.
func DefaultFeatureSchema() FeatureSchema {
	return FeatureSchema{
		Version: DefaultSchemaVersion,
		Numeric: []string{
			FieldAge, FieldDuration, FieldCampaign, FieldPdays, FieldPrevious,
			FieldEmpVarRate, "cons.price.idx", "cons.conf.idx", "euribor3m", "nr.employed",
			FeatureEngagementScore,
		},
		Categorical: []string{
			"job", "marital", "education", "default", "housing", "loan",
			"contact", "month", "day_of_week", "poutcome",
			FeatureAgeGroup, FeatureEmpVarCategory, FeatureDurationCategory,
		},
		Target: "y",
	}
}

// IsDerivedNumeric reports whether name is computed by feature engineering.
func IsDerivedNumeric(name string) bool { return name == FeatureEngagementScore }

// IsDerivedCategorical reports whether name is computed by feature engineering.
func IsDerivedCategorical(name string) bool {
	switch name {
	case FeatureAgeGroup, FeatureEmpVarCategory, FeatureDurationCategory:
		return true
	}
	return false
}

// RawNumeric returns the numeric features read directly from raw records.
func (s FeatureSchema) RawNumeric() []string {
	out := make([]string, 0, len(s.Numeric))
	for _, n := range s.Numeric {
		if !IsDerivedNumeric(n) {
			out = append(out, n)
		}
	}
	return out
}

// RawCategorical returns the categorical features read directly from raw records.
func (s FeatureSchema) RawCategorical() []string {
	out := make([]string, 0, len(s.Categorical))
	for _, n := range s.Categorical {
		if !IsDerivedCategorical(n) {
			out = append(out, n)
		}
	}
	return out
}

// Features returns every feature name, numeric first, in schema order.
func (s FeatureSchema) Features() []string {
	return append(slices.Clone(s.Numeric), s.Categorical...)
}

// Validate checks the structural invariants of the schema: non-empty unique
// names and a target that is not also a feature.
func (s FeatureSchema) Validate() error {
	verr := NewValidationError("FeatureSchema")
	if s.Version == "" {
		verr.AddError("version is required")
	}
	if len(s.Numeric) == 0 && len(s.Categorical) == 0 {
		verr.AddError("at least one feature is required")
	}
	seen := make(map[string]struct{}, len(s.Numeric)+len(s.Categorical))
	for _, name := range s.Features() {
		if strings.TrimSpace(name) == "" {
			verr.AddError("feature names cannot be empty")
			continue
		}
		if name == RowIDField {
			verr.AddError(fmt.Sprintf("%q is reserved", RowIDField))
		}
		if _, dup := seen[name]; dup {
			verr.AddError(fmt.Sprintf("duplicate feature %q", name))
		}
		seen[name] = struct{}{}
	}
	for _, name := range s.Numeric {
		if IsDerivedCategorical(name) {
			verr.AddError(fmt.Sprintf("%q is categorical", name))
		}
	}
	for _, name := range s.Categorical {
		if IsDerivedNumeric(name) {
			verr.AddError(fmt.Sprintf("%q is numeric", name))
		}
	}
	if s.Target != "" {
		if _, ok := seen[s.Target]; ok {
			verr.AddError(fmt.Sprintf("target %q cannot also be a feature", s.Target))
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Fingerprint returns a stable SHA-256 digest over everything in the schema
// that influences transformed output. Two schemas with the same fingerprint
// produce identically shaped and ordered matrices.
func (s FeatureSchema) Fingerprint() string {
	h := sha256.New()
	write := func(section string, values ...string) {
		h.Write([]byte(section))
		h.Write([]byte{0})
		for _, v := range values {
			h.Write([]byte(v))
			h.Write([]byte{0})
		}
		h.Write([]byte{0xff})
	}
	write("version", s.Version)
	write("numeric", s.Numeric...)
	write("categorical", s.Categorical...)
	write("target", s.Target)
	write("fold", fmt.Sprint(s.FoldCategories))
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether two schemas have identical names in identical order.
func (s FeatureSchema) Equal(other FeatureSchema) bool {
	return s.Fingerprint() == other.Fingerprint()
}
