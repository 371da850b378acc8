// Package refdata loads the static district and complaint catalogs used to
// validate conversational input. The catalogs are read once on startup and
// never mutated afterwards.
package refdata

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// District is a serviceable district and the state it belongs to.
type District struct {
	Name  string `yaml:"district"`
	State string `yaml:"state"`
}

// Label renders the district the way it is shown to users.
func (d District) Label() string {
	if d.State == "" {
		return d.Name
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.State)
}

// Complaint is a known complaint category for a specific appliance.
type Complaint struct {
	Appliance string `yaml:"appliance"`
	Text      string `yaml:"complaint"`
}

// Catalog holds the immutable reference data lookups.
type Catalog struct {
	districts  []District
	complaints []Complaint
}

type districtsFile struct {
	Districts []District `yaml:"districts"`
}

type complaintsFile struct {
	Complaints []Complaint `yaml:"complaints"`
}

// Load reads district and complaint catalogs from their YAML files.
func Load(districtsPath, complaintsPath string) (*Catalog, error) {
	var df districtsFile
	if err := readYAML(districtsPath, &df); err != nil {
		return nil, fmt.Errorf("load districts: %w", err)
	}
	var cf complaintsFile
	if err := readYAML(complaintsPath, &cf); err != nil {
		return nil, fmt.Errorf("load complaints: %w", err)
	}
	if len(df.Districts) == 0 {
		return nil, fmt.Errorf("load districts: %s contains no districts", districtsPath)
	}
	return New(df.Districts, cf.Complaints), nil
}

// New builds a catalog from already-parsed entries. Useful in tests.
func New(districts []District, complaints []Complaint) *Catalog {
	return &Catalog{districts: districts, complaints: complaints}
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// Districts returns all district display labels in catalog order.
func (c *Catalog) Districts() []string {
	out := make([]string, 0, len(c.districts))
	for _, d := range c.districts {
		out = append(out, d.Label())
	}
	return out
}

// IsDistrict reports whether input names a known district, matching either
// the bare district name or the "Name (State)" label, case-insensitively.
func (c *Catalog) IsDistrict(input string) bool {
	_, ok := c.ResolveDistrict(input)
	return ok
}

// ResolveDistrict maps user input to the canonical district name.
func (c *Catalog) ResolveDistrict(input string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return "", false
	}
	for _, d := range c.districts {
		if needle == strings.ToLower(d.Name) || needle == strings.ToLower(d.Label()) {
			return d.Name, true
		}
	}
	return "", false
}

// SuggestDistricts returns up to n district labels resembling the input,
// best matches first.
func (c *Catalog) SuggestDistricts(input string, n int) []string {
	return suggest(input, c.Districts(), n)
}

// ComplaintTypes returns all complaint categories for the given appliance.
func (c *Catalog) ComplaintTypes(appliance string) []string {
	var out []string
	for _, cp := range c.complaints {
		if strings.EqualFold(cp.Appliance, appliance) {
			out = append(out, cp.Text)
		}
	}
	return out
}

// SuggestComplaints returns up to n complaint categories for the appliance
// resembling the input.
func (c *Catalog) SuggestComplaints(appliance, input string, n int) []string {
	return suggest(input, c.ComplaintTypes(appliance), n)
}

type scored struct {
	value string
	score int
}

// suggest ranks candidates by a simple containment/prefix score. It is a
// deliberately small stand-in for fuzzy matching: exact match beats prefix,
// prefix beats substring, and everything else is filtered out.
func suggest(input string, candidates []string, n int) []string {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" || n <= 0 {
		return nil
	}
	var hits []scored
	for _, cand := range candidates {
		lc := strings.ToLower(cand)
		switch {
		case lc == needle:
			hits = append(hits, scored{cand, 0})
		case strings.HasPrefix(lc, needle):
			hits = append(hits, scored{cand, 1})
		case strings.Contains(lc, needle):
			hits = append(hits, scored{cand, 2})
		case strings.Contains(needle, lc):
			hits = append(hits, scored{cand, 3})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score < hits[j].score })
	if len(hits) > n {
		hits = hits[:n]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.value
	}
	return out
}
