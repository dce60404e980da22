package iqserver

import "encoding/json"

// Application is a project registered in the IQ server. The internal ID is used
// for server-side lookups; the public ID is the display/reporting key.
// Fields the server sends beyond the known ones are kept in Extra untouched.
type Application struct {
	ID       string `json:"id"`
	PublicID string `json:"publicId"`
	Name     string `json:"name"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (a *Application) UnmarshalJSON(data []byte) error {
	type plain Application
	var app plain
	if err := json.Unmarshal(data, &app); err != nil {
		return err
	}
	app.Extra = extraFields(data, "id", "publicId", "name")
	*a = Application(app)
	return nil
}

// Organization groups applications. Only the id -> name mapping is consumed.
type Organization struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	ParentOrganizationID string `json:"parentOrganizationId"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (o *Organization) UnmarshalJSON(data []byte) error {
	type plain Organization
	var org plain
	if err := json.Unmarshal(data, &org); err != nil {
		return err
	}
	org.Extra = extraFields(data, "id", "name", "parentOrganizationId")
	*o = Organization(org)
	return nil
}

// ReportInfo describes the most recent scan of one application. It is consumed
// immediately to derive a report identifier and never persisted.
type ReportInfo struct {
	ReportID      string `json:"reportId"`
	ScanID        string `json:"scanId"`
	ReportDataURL string `json:"reportDataUrl"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *ReportInfo) UnmarshalJSON(data []byte) error {
	type plain ReportInfo
	var info plain
	if err := json.Unmarshal(data, &info); err != nil {
		return err
	}
	info.Extra = extraFields(data, "reportId", "scanId", "reportDataUrl")
	*r = ReportInfo(info)
	return nil
}

// extraFields returns every top-level key of data except the known ones.
func extraFields(data []byte, known ...string) map[string]json.RawMessage {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// PolicyReport is the violation payload for one application, as fetched from
// the policy endpoint and staged on disk between fetch and consolidation.
type PolicyReport struct {
	Application ReportApplication `json:"application"`
	Components  []Component       `json:"components"`
}

// ReportApplication identifies which application a policy report belongs to.
type ReportApplication struct {
	PublicID       string `json:"publicId"`
	OrganizationID string `json:"organizationId"`
}

// Component is one scanned software component with its policy violations.
type Component struct {
	DisplayName string      `json:"displayName"`
	Violations  []Violation `json:"violations"`
}

// Violation is a single policy rule breach within a component.
type Violation struct {
	PolicyName           string       `json:"policyName"`
	PolicyThreatLevel    int          `json:"policyThreatLevel"`
	PolicyThreatCategory string       `json:"policyThreatCategory"`
	Constraints          []Constraint `json:"constraints"`
}

// Constraint is one triggered policy constraint and its matched conditions.
type Constraint struct {
	ConstraintName string      `json:"constraintName"`
	Conditions     []Condition `json:"conditions"`
}

// Condition carries the human-readable explanation of a constraint match.
// Either text may embed a CVE identifier.
type Condition struct {
	ConditionSummary string `json:"conditionSummary"`
	ConditionReason  string `json:"conditionReason"`
}
