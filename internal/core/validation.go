package core

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var (
	countryCodePattern        = regexp.MustCompile(`^[A-Z]{2}$`)
	characteristicCodePattern = regexp.MustCompile(`^[A-Z0-9]+$`)
)

const (
	maxStreetAddressLen = 255
	maxCityLen          = 100
	maxPostalCodeLen    = 20
	maxCodeLen          = 5
	maxValueLen         = 255

	duplicateKeySeparator = "_"
)

// ValidateCreate checks the shape of a create request. All violations are reported together.
func ValidateCreate(req CreateResourceRequest) error {
	v := &ValidationError{}

	switch {
	case req.Type == "":
		v.add("type", "Resource type is required")
	case !req.Type.IsValid():
		v.add("type", fmt.Sprintf("Unknown resource type %q", req.Type))
	}
	validateCountryCode(v, "countryCode", req.CountryCode)

	if req.Location == nil {
		v.add("location", "Location is required")
	} else {
		validateLocation(v, "location", *req.Location)
	}
	validateCharacteristicFields(v, req.Characteristics)

	return v.errOrNil()
}

// ValidateUpdate checks the shape of the fields present in an update request.
func ValidateUpdate(req UpdateResourceRequest) error {
	v := &ValidationError{}
	if req.Location != nil {
		validateLocation(v, "location", *req.Location)
	}
	validateCharacteristicFields(v, req.Characteristics)
	return v.errOrNil()
}

// ValidateFilter checks optional list filters.
func ValidateFilter(f ListFilter) error {
	v := &ValidationError{}
	if f.CountryCode != "" {
		validateCountryCode(v, "countryCode", f.CountryCode)
	}
	if f.Type != "" && !f.Type.IsValid() {
		v.add("type", fmt.Sprintf("Unknown resource type %q", f.Type))
	}
	return v.errOrNil()
}

// CheckDuplicateCharacteristics scans list in order and fails on the first (code, type) pair
// already seen, naming that pair.
func CheckDuplicateCharacteristics(list []CharacteristicInput) error {
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		key := c.Code + duplicateKeySeparator + string(c.Type)
		if _, ok := seen[key]; ok {
			return &DuplicateCharacteristicError{Code: c.Code, Type: c.Type}
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validateCountryCode(v *ValidationError, field, code string) {
	switch {
	case code == "":
		v.add(field, "Country code is required")
	case !countryCodePattern.MatchString(code):
		v.add(field, "Country code must be 2 uppercase letters (ISO 3166-1 alpha-2)")
	}
}

func validateLocation(v *ValidationError, prefix string, loc Location) {
	requireMaxLen(v, prefix+".streetAddress", "Street address", loc.StreetAddress, maxStreetAddressLen)
	requireMaxLen(v, prefix+".city", "City", loc.City, maxCityLen)
	requireMaxLen(v, prefix+".postalCode", "Postal code", loc.PostalCode, maxPostalCodeLen)
	validateCountryCode(v, prefix+".countryCode", loc.CountryCode)
}

func validateCharacteristicFields(v *ValidationError, list []CharacteristicInput) {
	for i, c := range list {
		prefix := fmt.Sprintf("characteristics[%d]", i)

		switch {
		case c.Code == "":
			v.add(prefix+".code", "Code is required")
		case utf8.RuneCountInString(c.Code) > maxCodeLen:
			v.add(prefix+".code", "Code must be between 1 and 5 characters")
		case !characteristicCodePattern.MatchString(c.Code):
			v.add(prefix+".code", "Code must contain only uppercase letters and numbers")
		}

		switch {
		case c.Type == "":
			v.add(prefix+".type", "Type is required")
		case !c.Type.IsValid():
			v.add(prefix+".type", fmt.Sprintf("Unknown characteristic type %q", c.Type))
		}

		requireMaxLen(v, prefix+".value", "Value", c.Value, maxValueLen)
	}
}

func requireMaxLen(v *ValidationError, field, label, value string, max int) {
	switch {
	case value == "":
		v.add(field, label+" is required")
	case utf8.RuneCountInString(value) > max:
		v.add(field, fmt.Sprintf("%s must not exceed %d characters", label, max))
	}
}
