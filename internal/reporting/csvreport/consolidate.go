// Package csvreport flattens per-application policy reports into one tabular
// security report and writes it as CSV.
package csvreport

import (
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/iqfetch/internal/iqserver"
)

var cvePattern = regexp.MustCompile(`CVE-\d{4}-\d+`)

// Row is one consolidated line: an (application, component, violation) triple
// with its derived classification.
type Row struct {
	Number         int
	Application    string
	Organization   string
	Policy         string
	Component      string
	ThreatLevel    int
	PolicyAction   string
	ConstraintName string
	Condition      string
	CVE            string
}

// Consolidator flattens policy reports into rows, enriching organization ids
// with the names resolved at the start of the run.
type Consolidator struct {
	orgNames map[string]string
	log      *zap.Logger
}

// NewConsolidator builds a consolidator. An empty or nil mapping simply means
// every organization falls back to its raw id.
func NewConsolidator(orgNames map[string]string, logger *zap.Logger) *Consolidator {
	return &Consolidator{orgNames: orgNames, log: logger.Named("consolidate")}
}

// Consolidate emits one row per violation, in payload order, then component
// order, then violation order. Components without violations contribute no
// rows. Row numbers are 1-based in emission order.
func (c *Consolidator) Consolidate(reports []iqserver.PolicyReport) []Row {
	if len(reports) == 0 {
		c.log.Warn("No report data found to consolidate")
		return nil
	}
	c.log.Info("Consolidating reports", zap.Int("reports", len(reports)))

	var rows []Row
	for _, report := range reports {
		appID := report.Application.PublicID
		if appID == "" {
			appID = "unknown"
		}
		orgID := strings.TrimSpace(report.Application.OrganizationID)
		if orgID == "" {
			orgID = "unknown"
		}
		orgName, ok := c.orgNames[orgID]
		if !ok {
			orgName = orgID
		}

		for _, component := range report.Components {
			if len(component.Violations) == 0 {
				continue
			}
			for _, violation := range component.Violations {
				info := extractConstraintInfo(violation.Constraints)
				rows = append(rows, Row{
					Number:         len(rows) + 1,
					Application:    appID,
					Organization:   orgName,
					Policy:         violation.PolicyName,
					Component:      component.DisplayName,
					ThreatLevel:    violation.PolicyThreatLevel,
					PolicyAction:   policyAction(violation),
					ConstraintName: info.name,
					Condition:      info.condition,
					CVE:            info.cve,
				})
			}
		}
	}

	c.log.Info("Consolidation produced rows", zap.Int("rows", len(rows)))
	return rows
}

// ClassifySeverity maps a policy threat level to its severity band.
// Boundaries are inclusive: 7+ Critical, 4-6 Severe, 1-3 Moderate, below 1 Low.
func ClassifySeverity(threatLevel int) string {
	switch {
	case threatLevel >= 7:
		return "Critical"
	case threatLevel >= 4:
		return "Severe"
	case threatLevel >= 1:
		return "Moderate"
	default:
		return "Low"
	}
}

// policyAction derives the Policy/Action label. SECURITY-category violations
// get fixed labels per band; the middle band's wording is kept exactly as the
// upstream report pipeline produced it, pending product clarification.
func policyAction(v iqserver.Violation) string {
	if strings.EqualFold(v.PolicyThreatCategory, "SECURITY") {
		switch {
		case v.PolicyThreatLevel >= 7:
			return "Security-Critical"
		case v.PolicyThreatLevel >= 4:
			return "Security-CVSS score than or equals 7"
		default:
			return "Security-Moderate"
		}
	}

	severity := ClassifySeverity(v.PolicyThreatLevel)
	if v.PolicyThreatCategory != "" {
		return v.PolicyThreatCategory + "-" + severity
	}
	return severity
}

type constraintInfo struct {
	name      string
	condition string
	cve       string
}

// extractConstraintInfo derives the constraint name, condition text and CVE
// list for one violation. When a violation carries several constraints the
// last one wins; values are not accumulated across constraints.
func extractConstraintInfo(constraints []iqserver.Constraint) constraintInfo {
	var info constraintInfo
	for _, constraint := range constraints {
		info.name = constraint.ConstraintName

		var cveIDs []string
		var conditionParts []string
		for _, condition := range constraint.Conditions {
			match := cvePattern.FindString(condition.ConditionSummary + " " + condition.ConditionReason)
			if match != "" && !slices.Contains(cveIDs, match) {
				cveIDs = append(cveIDs, match)
			}
			if condition.ConditionReason != "" {
				conditionParts = append(conditionParts, condition.ConditionReason)
			} else if condition.ConditionSummary != "" {
				conditionParts = append(conditionParts, condition.ConditionSummary)
			}
		}

		info.cve = strings.Join(cveIDs, ", ")
		info.condition = strings.Join(conditionParts, " | ")
	}
	return info
}
