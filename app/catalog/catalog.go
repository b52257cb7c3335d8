// Package catalog holds the closed vocabularies used across the pipeline:
// product categories, sustainability certificates, genders and consumer
// lifestages. Values coming from configuration files, crawl metadata or the
// prediction service are parsed against these tables and rejected when
// unknown.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

type Category string

const (
	CategoryBlouse      Category = "BLOUSE"
	CategoryShirt       Category = "SHIRT"
	CategoryTShirt      Category = "T_SHIRT"
	CategoryTop         Category = "TOP"
	CategorySweater     Category = "SWEATER"
	CategoryJacket      Category = "JACKET"
	CategoryCoat        Category = "COAT"
	CategoryDress       Category = "DRESS"
	CategorySkirt       Category = "SKIRT"
	CategoryJeans       Category = "JEANS"
	CategoryPants       Category = "PANTS"
	CategoryShorts      Category = "SHORTS"
	CategorySneakers    Category = "SNEAKERS"
	CategoryShoes       Category = "SHOES"
	CategoryBoots       Category = "BOOTS"
	CategorySandals     Category = "SANDALS"
	CategoryUnderwear   Category = "UNDERWEAR"
	CategorySwimwear    Category = "SWIMWEAR"
	CategoryBag         Category = "BAG"
	CategoryAccessories Category = "ACCESSORIES"
)

var categories = lookup(
	CategoryBlouse, CategoryShirt, CategoryTShirt, CategoryTop, CategorySweater,
	CategoryJacket, CategoryCoat, CategoryDress, CategorySkirt, CategoryJeans,
	CategoryPants, CategoryShorts, CategorySneakers, CategoryShoes, CategoryBoots,
	CategorySandals, CategoryUnderwear, CategorySwimwear, CategoryBag, CategoryAccessories,
)

type Gender string

const (
	GenderFemale Gender = "FEMALE"
	GenderMale   Gender = "MALE"
	GenderUnisex Gender = "UNISEX"
)

var genders = lookup(GenderFemale, GenderMale, GenderUnisex)

type Lifestage string

const (
	LifestageAdult Lifestage = "ADULT"
	LifestageTeen  Lifestage = "TEEN"
	LifestageChild Lifestage = "CHILD"
	LifestageBaby  Lifestage = "BABY"
)

var lifestages = lookup(LifestageAdult, LifestageTeen, LifestageChild, LifestageBaby)

// UnknownValueError reports an identifier that is not part of a closed vocabulary.
type UnknownValueError struct {
	Kind  string
	Value string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

func ParseCategory(s string) (Category, error) {
	return parse(categories, "category", s)
}

func ParseGender(s string) (Gender, error) {
	return parse(genders, "gender", s)
}

func ParseLifestage(s string) (Lifestage, error) {
	return parse(lifestages, "consumer lifestage", s)
}

// Categories returns every known category in lexical order.
func Categories() []Category {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Key folds an identifier to the form used by the lookup tables:
// upper case, with every run of non-alphanumeric characters turned into '_'.
func Key(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}

func lookup[T ~string](values ...T) map[string]T {
	m := make(map[string]T, len(values))
	for _, v := range values {
		m[Key(string(v))] = v
	}
	return m
}

func parse[T ~string](table map[string]T, kind, s string) (T, error) {
	if v, ok := table[Key(s)]; ok {
		return v, nil
	}
	var zero T
	return zero, &UnknownValueError{Kind: kind, Value: s}
}
