// Package phone normalizes affiliate contact numbers.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country prefix
const DefaultRegion = "US"

// Details describes a parsed phone number
type Details struct {
	E164          string `json:"e164_format"`
	International string `json:"international_format"`
	Region        string `json:"country_code"`
	Mobile        bool   `json:"mobile"`
}

// Parse validates a phone number and returns its formats
func Parse(number, region string) (*Details, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("phone number cannot be empty")
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return nil, fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return nil, fmt.Errorf("invalid phone number: %s", number)
	}

	numberType := phonenumbers.GetNumberType(parsed)
	return &Details{
		E164:          phonenumbers.Format(parsed, phonenumbers.E164),
		International: phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL),
		Region:        phonenumbers.GetRegionCodeForNumber(parsed),
		Mobile:        numberType == phonenumbers.MOBILE || numberType == phonenumbers.FIXED_LINE_OR_MOBILE,
	}, nil
}

// NormalizeE164 returns number in E.164 form
func NormalizeE164(number, region string) (string, error) {
	d, err := Parse(number, region)
	if err != nil {
		return "", err
	}
	return d.E164, nil
}
