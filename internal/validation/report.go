package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Check names, in the order Validate runs them
const (
	CheckRequiredFields = "required_fields"
	CheckDateFormat     = "date_format"
	CheckTotalAmount    = "total_amount"
	CheckTaxRate        = "tax_rate"
	CheckIsDuplicate    = "is_duplicate"
)

// CheckResult is the outcome of one named check. A failed required_fields
// check carries Missing instead of Details.
type CheckResult struct {
	Name    string   `json:"-"`
	Pass    bool     `json:"pass"`
	Details string   `json:"details,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// Checks is the ordered list of results. It encodes as a JSON object whose
// keys keep execution order.
type Checks []CheckResult

// MarshalJSON writes the checks as an ordered JSON object
func (c Checks) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, check := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(check.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(check)
		if err != nil {
			return nil, fmt.Errorf("marshaling check %s: %w", check.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an ordered JSON object back into a list
func (c *Checks) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("checks: expected object, got %v", tok)
	}

	checks := make(Checks, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("checks: expected key, got %v", tok)
		}
		var check CheckResult
		if err := dec.Decode(&check); err != nil {
			return fmt.Errorf("decoding check %s: %w", name, err)
		}
		check.Name = name
		checks = append(checks, check)
	}
	*c = checks
	return nil
}

// Report is the result of one Validate call
type Report struct {
	Passed bool   `json:"passed"`
	Checks Checks `json:"checks"`
}

// Check returns the named result, if that check ran
func (r Report) Check(name string) (CheckResult, bool) {
	for _, check := range r.Checks {
		if check.Name == name {
			return check, true
		}
	}
	return CheckResult{}, false
}

// Failed returns the results that did not pass
func (r Report) Failed() []CheckResult {
	var failed []CheckResult
	for _, check := range r.Checks {
		if !check.Pass {
			failed = append(failed, check)
		}
	}
	return failed
}

func (r *Report) add(check CheckResult) {
	r.Checks = append(r.Checks, check)
	r.Passed = r.Passed && check.Pass
}
